package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

func TestLightweightFilter(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("内容", 45)
	tests := []struct {
		name     string
		title    string
		summary  string
		category string
		want     bool
	}{
		{"too short", "短い", "本文", news.CategoryGeneral, false},
		{"ordinary", "新しい橋が開通", long, news.CategoryDomestic, true},
		{"low value title", "プロ野球の結果", long, news.CategoryGeneral, false},
		{"low value title rescued", "選挙の結果", long, news.CategoryPolitics, true},
		{"english results", "Match results", long, news.CategoryInternational, false},
		{"breaking kept", "速報 地震発生", long, news.CategoryDomestic, true},
		{"sports category", "開幕戦", long, news.CategorySports, false},
		{"sports with policy", "スポーツ予算が拡大", long, news.CategorySports, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, LightweightFilter(tt.title, tt.summary, tt.category))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	got := ExtractKeywords("日銀が金利を据え置き", "OpenAI openai GPT AI の発表。日銀が会見")
	require.Equal(t, []string{"日銀が金利を据え置き", "OpenAI", "GPT", "の発表", "日銀が会見"}, got)

	var many []string
	for i := 0; i < 50; i++ {
		many = append(many, "word"+strings.Repeat("x", i))
	}
	require.Len(t, ExtractKeywords(strings.Join(many, " "), ""), 30)
}

func TestNGramsAndQuestions(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a b", "b c"}, NGrams([]string{"a", "b", "c"}, 2))
	require.Empty(t, NGrams([]string{"a"}, 2))
	require.Empty(t, NGrams([]string{"a"}, 0))

	q := QuestionVariants([]string{"k1", "k2", "k3", "k4", "k5", "k6"})
	require.Len(t, q, 15)
	require.Equal(t, []string{"k1 何", "k1 とは", "k1 いつ"}, q[:3])
}

type countSuggester map[string]int

func (c countSuggester) Count(_ context.Context, q string) int { return c[q] }

func TestScoreComponents(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	a := news.Article{
		Title:     "政策 会議",
		Summary:   "GDP growth",
		Published: now.Add(-4 * time.Hour),
	}
	// keywords: 政策, 会議, GDP, growth ; bigram "政策 会議"; question "政策 何"
	sugg := countSuggester{"政策": 2, "政策 会議": 2, "政策 何": 1}
	s := NewScorer(sugg, nil)

	got := s.Score(context.Background(), a, []string{"gdp", "absent"}, now)
	// autocomplete 2 + 2*1.5 + 1*2 = 7; high value (政策, GDP) = 6; trend 5; recency 15-2 = 13
	require.InDelta(t, 31.0, got, 1e-9)

	noSuggest := NewScorer(nil, nil).Score(context.Background(), news.Article{Title: "x"}, nil, now)
	require.Zero(t, noSuggest)
}

func TestRankAndFilter(t *testing.T) {
	t.Parallel()

	now := time.Now()
	pad := strings.Repeat("詳細", 45)
	items := []news.Article{
		{ID: "old", Title: "地域の話題", Summary: pad, Published: now.Add(-48 * time.Hour)},
		{ID: "policy", Title: "経済政策を発表", Summary: pad, Published: now.Add(-48 * time.Hour)},
		{ID: "fresh", Title: "地域の話題2", Summary: pad, Published: now},
		{ID: "short", Title: "短い", Summary: "x", Published: now},
	}
	got := NewScorer(nil, nil).RankAndFilter(context.Background(), items, nil, 2, now)
	require.Equal(t, []string{"fresh", "policy"}, ids(got))

	allFiltered := NewScorer(nil, nil).RankAndFilter(context.Background(), items[3:], nil, 5, now)
	require.Equal(t, []string{"short"}, ids(allFiltered))
}

func TestAutocompleteCountsAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("client") != "firefox" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("q") {
		case "円安":
			_, _ = w.Write([]byte(`["円安",["円安 いつまで","円安 理由","円安 影響"]]`))
		case "broken":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ac := NewAutocomplete(nil, srv.URL)
	require.Equal(t, 3, ac.Count(context.Background(), "円安"))
	require.Equal(t, 3, ac.Count(context.Background(), "円安"))
	require.Equal(t, int32(1), hits.Load())

	require.Zero(t, ac.Count(context.Background(), "broken"))
	require.Zero(t, ac.Count(context.Background(), "other"))
}

func ids(items []news.Article) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}
