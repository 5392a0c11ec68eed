package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<title>Fixture</title>
<item>
  <title>大谷選手が本塁打</title>
  <link>https://example.com/sports</link>
  <description>&lt;p&gt;試合で&amp;nbsp;活躍&lt;/p&gt;</description>
  <content:encoded><![CDATA[<p>詳しい本文</p>]]></content:encoded>
  <pubDate>Tue, 10 Jun 2025 09:00:00 +0900</pubDate>
  <media:content url="https://img.example.com/sports.jpg" medium="image"/>
</item>
<item>
  <title>経済の話題</title>
  <link>https://example.com/econ</link>
  <description>&lt;img src="https://img.example.com/econ.png"&gt;景気の動向</description>
  <pubDate>Tue, 10 Jun 2025 12:00:00 +0900</pubDate>
</item>
<item>
  <title>No date</title>
  <link>https://example.com/nodate</link>
  <description>undated</description>
  <enclosure url="https://img.example.com/enc.jpg" type="image/jpeg" length="10"/>
</item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.xml", "/dup.xml":
			if r.UserAgent() != DefaultUserAgent {
				http.Error(w, "bad agent", http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = fmt.Fprint(w, rssFixture)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesAndDeduplicates(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t)
	now := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := New([]Source{
		{URL: srv.URL + "/ok.xml", Name: "NHK", Category: news.CategoryDomestic},
		{URL: srv.URL + "/broken.xml", Name: "Broken", Category: news.CategoryGeneral},
		{URL: srv.URL + "/dup.xml", Name: "Reuters", Category: news.CategoryInternational},
	}, Options{Clock: fixedClock{now}})

	items, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	// undated entry takes "now" and sorts first
	require.Equal(t, "No date", items[0].Title)
	require.Equal(t, now, items[0].Published)
	require.Equal(t, "https://img.example.com/enc.jpg", items[0].ImageURL)

	require.Equal(t, "経済の話題", items[1].Title)
	require.Equal(t, "https://img.example.com/econ.png", items[1].ImageURL)
	require.Equal(t, "景気の動向", items[1].Summary)

	sports := items[2]
	require.Equal(t, news.ArticleID("https://example.com/sports", "大谷選手が本塁打"), sports.ID)
	require.Equal(t, news.CategorySports, sports.Category)
	require.Equal(t, "NHK", sports.Source)
	require.Equal(t, "試合で 活躍 詳しい本文", sports.Summary)
	require.Equal(t, "https://img.example.com/sports.jpg", sports.ImageURL)
	require.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), sports.Published)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultCatalog(), Options{}).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFeedURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://nhk/rss.xml", FeedURL("", "https://nhk/rss.xml"))
	require.Equal(t,
		"https://ftr.example.com/makefulltextfeed.php?url=https%3A%2F%2Fnhk%2Frss.xml%3Fa%3D1&max=50",
		FeedURL("https://ftr.example.com", "https://nhk/rss.xml?a=1"))
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	def, err := LoadCatalog("")
	require.NoError(t, err)
	require.Len(t, def, 7)

	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - url: https://example.com/a.xml
    source: Example
  - url: https://example.com/b.xml
    source: Tech
    category: テクノロジー
`), 0o600))
	got, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, []Source{
		{URL: "https://example.com/a.xml", Name: "Example", Category: news.CategoryGeneral},
		{URL: "https://example.com/b.xml", Name: "Tech", Category: news.CategoryTechnology},
	}, got)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("feeds:\n  - source: NoURL\n"), 0o600))
	_, err = LoadCatalog(bad)
	require.ErrorContains(t, err, "url is required")

	_, err = LoadCatalog(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
