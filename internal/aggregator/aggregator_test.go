package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/memory"
)

type stubFeed struct {
	items []news.Article
	err   error
	calls atomic.Int32
}

func (f *stubFeed) Fetch(context.Context) ([]news.Article, error) {
	f.calls.Add(1)
	return f.items, f.err
}

type stubTrends struct {
	calls atomic.Int32
}

func (s *stubTrends) Fetch(context.Context) []news.Trend {
	n := s.calls.Add(1)
	return []news.Trend{{ID: "t", Keyword: "円安", Source: "google"}, {Keyword: string(rune('a' + n))}}
}

// explainProcessor stores and explains every item it receives.
type explainProcessor struct {
	store    *memory.Store
	limits   []int
	keywords [][]string
}

func (p *explainProcessor) ProcessNew(ctx context.Context, items []news.Article, limit int, keywords []string) int {
	p.limits = append(p.limits, limit)
	p.keywords = append(p.keywords, keywords)
	added := 0
	for _, it := range items {
		if added == limit {
			break
		}
		_ = p.store.SaveArticle(ctx, it)
		_ = p.store.SaveExplanation(ctx, news.Explanation{ArticleID: it.ID, Blocks: []news.Block{{Type: news.BlockText, Content: "x"}}})
		added++
	}
	return added
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func seed(t *testing.T, store *memory.Store, id string, explained bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveArticle(ctx, news.Article{ID: id, Title: id, Category: news.CategoryGeneral}))
	if explained {
		require.NoError(t, store.SaveExplanation(ctx, news.Explanation{ArticleID: id}))
	}
}

func newAggregator(store *memory.Store, feed *stubFeed, cfg Config) (*Aggregator, *explainProcessor, *manualClock) {
	proc := &explainProcessor{store: store}
	clock := &manualClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	return New(store, feed, &stubTrends{}, proc, clock, cfg, nil), proc, clock
}

func TestNewsShowsOnlyExplainedArticles(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	seed(t, store, "b", false)
	seed(t, store, "c", true)
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{DisplayLimit: 10})

	items, err := agg.News(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "c", items[0].ID)
	require.Equal(t, "a", items[1].ID)
}

func TestNewsCapsAtDisplayLimit(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		seed(t, store, id, true)
	}
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{DisplayLimit: 2})

	items, err := agg.News(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "d", items[0].ID)
}

func TestNewsReturnsWarmCacheWithoutForce(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{})
	ctx := context.Background()

	_, err := agg.News(ctx, false)
	require.NoError(t, err)
	seed(t, store, "b", true)

	items, err := agg.News(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = agg.Reload(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestNewsForceIngests(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	feed := &stubFeed{items: []news.Article{{ID: "n1", Title: "n1"}, {ID: "n2", Title: "n2"}}}
	agg, proc, _ := newAggregator(store, feed, Config{MaxPerRun: 1})

	items, err := agg.News(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, []int{1}, proc.limits)
	require.Contains(t, proc.keywords[0], "円安")
}

func TestNewsForceSkipsIngestWhenDisabled(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	feed := &stubFeed{items: []news.Article{{ID: "n1"}}}
	agg, proc, _ := newAggregator(store, feed, Config{UpdatesDisabled: true})

	items, err := agg.News(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Zero(t, feed.calls.Load())
	require.Empty(t, proc.limits)
}

func TestNewsForceSurvivesFeedError(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	agg, proc, _ := newAggregator(store, &stubFeed{err: errors.New("boom")}, Config{})

	items, err := agg.News(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Empty(t, proc.limits)
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                 string
		total, per, page     int
		wantPage, wantPages  int
		wantPrev, wantNextPg bool
	}{
		{"empty", 0, 24, 1, 1, 1, false, false},
		{"first", 50, 24, 1, 1, 3, false, true},
		{"middle", 50, 24, 2, 2, 3, true, true},
		{"clamped high", 50, 24, 9, 3, 3, true, false},
		{"clamped low", 50, 24, -4, 1, 3, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Paginate(tt.total, tt.per, tt.page)
			require.Equal(t, tt.wantPage, p.Page)
			require.Equal(t, tt.wantPages, p.TotalPages)
			require.Equal(t, tt.wantPrev, p.HasPrev)
			require.Equal(t, tt.wantNextPg, p.HasNext)
			require.Equal(t, tt.total, p.Total)
		})
	}
}

func TestByCategoryPages(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	for _, id := range []string{"a", "b", "c"} {
		seed(t, store, id, true)
	}
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{ItemsPerPage: 2})

	groups, p, err := agg.ByCategory(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 2, p.TotalPages)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Articles, 1)
	require.Equal(t, "a", groups[0].Articles[0].ID)
}

func TestTrendsCacheExpires(t *testing.T) {
	t.Parallel()

	trends := &stubTrends{}
	clock := &manualClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	agg := New(memory.NewStore(), &stubFeed{}, trends, &explainProcessor{}, clock, Config{TrendTTL: 10 * time.Minute}, nil)
	ctx := context.Background()

	first := agg.Trends(ctx, false)
	require.Len(t, first, 2)
	require.Equal(t, first, agg.Trends(ctx, false))
	require.EqualValues(t, 1, trends.calls.Load())

	clock.now = clock.now.Add(11 * time.Minute)
	agg.Trends(ctx, false)
	require.EqualValues(t, 2, trends.calls.Load())

	agg.Trends(ctx, true)
	require.EqualValues(t, 3, trends.calls.Load())
}

func TestArticleFallsBackToStore(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "hidden", false)
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{})
	ctx := context.Background()

	art, err := agg.Article(ctx, "hidden")
	require.NoError(t, err)
	require.Equal(t, "hidden", art.ID)

	_, err = agg.Article(ctx, "missing")
	require.ErrorIs(t, err, news.ErrNotFound)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	seed(t, store, "b", false)
	agg, _, _ := newAggregator(store, &stubFeed{}, Config{AIConfigured: true, UpdatesDisabled: true})

	st, err := agg.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, Status{
		ArticlesInDB:    2,
		AIProcessed:     1,
		Displayable:     1,
		OpenAIKeySet:    true,
		UpdatesDisabled: true,
		StorageBackend:  "memory",
	}, st)
}

func TestBootstrapFillsSparseSite(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	feed := &stubFeed{items: []news.Article{{ID: "n1"}, {ID: "n2"}}}
	agg, proc, _ := newAggregator(store, feed, Config{StartupThreshold: 5, MaxPerRun: 5})

	agg.Bootstrap(context.Background())

	// startup fill plus the forced refresh
	require.Len(t, proc.limits, 2)
	require.Nil(t, proc.keywords[0])
	items, err := agg.News(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestBootstrapSkipsFillWhenPopulated(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, "a", true)
	feed := &stubFeed{}
	agg, proc, _ := newAggregator(store, feed, Config{StartupThreshold: 1, UpdatesDisabled: true})

	agg.Bootstrap(context.Background())
	require.Empty(t, proc.limits)
	require.Zero(t, feed.calls.Load())
}
