package trends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

type staticSource struct {
	name  string
	items []string
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Trends(context.Context) ([]news.Trend, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]news.Trend, 0, len(s.items))
	for _, kw := range s.items {
		out = append(out, news.Trend{ID: news.TrendID(kw), Keyword: kw, Source: s.name})
	}
	return out, nil
}

func TestServiceMergesAndDeduplicates(t *testing.T) {
	t.Parallel()

	svc := NewService(nil,
		staticSource{name: "a", items: []string{"OpenAI", "大谷翔平"}},
		staticSource{name: "broken", err: errors.New("down")},
		nil,
		staticSource{name: "b", items: []string{"openai ", "円安"}},
	)
	got := news.Keywords(svc.Fetch(context.Background()))
	require.Equal(t, []string{"OpenAI", "大谷翔平", "円安"}, got)
}

func TestServiceCapsResults(t *testing.T) {
	t.Parallel()

	var many []string
	for i := 0; i < 40; i++ {
		many = append(many, fmt.Sprintf("kw%02d", i))
	}
	got := NewService(nil, staticSource{name: "a", items: many}).Fetch(context.Background())
	require.Len(t, got, MaxTrends)
}

func TestGoogleRSS(t *testing.T) {
	t.Parallel()

	var items strings.Builder
	for _, title := range []string{"トレンド1", "x", "大谷翔平", " 円安 ", "トレンド 12"} {
		fmt.Fprintf(&items, "<item><title>%s</title></item>", title)
	}
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&items, "<item><title>word%02d</title></item>", i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "NewsSite") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>%s</channel></rss>`, items.String())
	}))
	defer srv.Close()

	got, err := NewGoogleRSS(nil, srv.URL).Trends(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 20)
	require.Equal(t, "大谷翔平", got[0].Keyword)
	require.Equal(t, "円安", got[1].Keyword)
	require.Equal(t, "google", got[0].Source)
	require.Equal(t, news.TrendID("大谷翔平"), got[0].ID)
	// only the first 25 entries are scanned
	require.Equal(t, "word17", got[len(got)-1].Keyword)
}

func TestGoogleRSSError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGoogleRSS(nil, srv.URL).Trends(context.Background())
	require.ErrorContains(t, err, "429")
}

func TestRapidAPIFallsThroughPaths(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "secret" || r.Header.Get("X-RapidAPI-Host") != DefaultRapidAPIHost {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/trending/now":
			w.WriteHeader(http.StatusNotFound)
		case "/trending/hourly":
			_, _ = w.Write([]byte(`{"message":"no list here"}`))
		case "/v1/trending":
			_, _ = w.Write([]byte(`{"data":[{"keyword":"円安"},{"title":"日経平均"},"選挙",{"name":"x"},42]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	got, err := NewRapidAPI(nil, "secret", "").WithBaseURL(srv.URL).Trends(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"円安", "日経平均", "選挙"}, news.Keywords(got))
	require.Equal(t, news.TrendID("sdt-円安"), got[0].ID)
}

func TestRapidAPIDisabledWithoutKey(t *testing.T) {
	t.Parallel()

	src := NewRapidAPI(nil, "  ", "")
	require.Nil(t, src)
	got, err := src.Trends(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	svc := NewService(nil, src)
	require.Empty(t, svc.Fetch(context.Background()))
}

func TestNitterScrapesSearchLinks(t *testing.T) {
	t.Parallel()

	sparse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/explore/trends" {
			_, _ = w.Write([]byte(`<a href="/search?q=%23a">#大谷</a><a href="/home">ホーム</a>`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer sparse.Close()

	full := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a href="/search?q=1">#大谷</a>
<a href="/search?q=2">検索</a>
<a href="/search?q=3">円安</a>
<a href="/i/trends?q=4">選挙速報</a>
<a href="/search?q=5">新作ゲーム</a>
<a href="/search?q=6">台風</a>
<a href="/profile">プロフィールリンク</a>
<a href="/search?q=7">x</a>
</body></html>`))
	}))
	defer full.Close()

	got, err := NewNitter(nil, []string{sparse.URL, full.URL}).Trends(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"大谷", "円安", "選挙速報", "新作ゲーム", "台風"}, news.Keywords(got))
	require.Equal(t, "twitter", got[0].Source)
}

func TestNitterAllInstancesFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewNitter(nil, []string{srv.URL}).Trends(context.Background())
	require.Error(t, err)
}
