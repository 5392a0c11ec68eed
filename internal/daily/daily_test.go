package daily

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/memory"
)

type fakeAI struct {
	mu         sync.Mutex
	configured bool
	memoErr    error
	titles     []string
	personas   []string
}

func (f *fakeAI) Configured() bool { return f.configured }

func (f *fakeAI) DailyMemo(_ context.Context, titles []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = titles
	if f.memoErr != nil {
		return "", f.memoErr
	}
	return "今日のメモ", nil
}

func (f *fakeAI) PersonaComment(_ context.Context, p news.Persona, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personas = append(f.personas, p.Name)
	return p.Name + "のコメント", nil
}

type fakeArticles struct{ items []news.Article }

func (f fakeArticles) News(context.Context, bool) ([]news.Article, error) { return f.items, nil }

type fakeClock struct {
	now   time.Time
	today string
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Today() string  { return c.today }

func articles(n int, published time.Time) []news.Article {
	out := make([]news.Article, n)
	for i := range out {
		out[i] = news.Article{ID: fmt.Sprint(i), Title: fmt.Sprintf("記事%d", i), Published: published}
	}
	return out
}

func newService(ai *fakeAI, items []news.Article, disabled bool) (*Service, *memory.Store, *fakeClock) {
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC), today: "2026-05-10"}
	svc := New(store, ai, fakeArticles{items: items}, clock, disabled, nil)
	svc.perm = func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = n - 1 - i
		}
		return out
	}
	return svc, store, clock
}

func TestGenerateUsesRecentTitles(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{configured: true}
	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	items := append(articles(20, now.Add(-time.Hour)), articles(3, now.Add(-72*time.Hour))...)
	svc, store, _ := newService(ai, items, false)

	content, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, content)
	require.Equal(t, "2026-05-10", content.Date)
	require.Equal(t, "今日のメモ", content.Memo)
	require.Len(t, ai.titles, 15)
	require.Equal(t, []string{news.Personas[4].Name, news.Personas[3].Name}, ai.personas)
	require.Len(t, content.PersonaComments, 2)
	require.Equal(t, news.Personas[4].Emoji, content.PersonaComments[0].Emoji)

	stored, err := store.LoadDaily(context.Background())
	require.NoError(t, err)
	require.Equal(t, "今日のメモ", stored.Memo)
}

func TestGenerateFallsBackToFirstTen(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{configured: true}
	old := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _ := newService(ai, articles(14, old), false)

	_, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, ai.titles, 10)
	require.Equal(t, "記事0", ai.titles[0])
}

func TestGenerateSkips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		ai       *fakeAI
		items    []news.Article
		disabled bool
	}{
		{"unconfigured", &fakeAI{}, articles(3, now), false},
		{"disabled", &fakeAI{configured: true}, articles(3, now), true},
		{"no articles", &fakeAI{configured: true}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, store, _ := newService(tt.ai, tt.items, tt.disabled)
			content, err := svc.Generate(context.Background())
			require.NoError(t, err)
			require.Nil(t, content)
			require.Nil(t, tt.ai.titles)
			_, err = store.LoadDaily(context.Background())
			require.ErrorIs(t, err, news.ErrNotFound)
		})
	}
}

func TestGenerateSavesCommentsWhenMemoFails(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{configured: true, memoErr: errors.New("quota")}
	svc, store, _ := newService(ai, articles(2, time.Now()), false)
	ctx := context.Background()

	content, err := svc.Generate(ctx)
	require.NoError(t, err)
	require.Empty(t, content.Memo)
	require.Len(t, content.PersonaComments, commentPersons)

	saved, err := store.LoadDaily(ctx)
	require.NoError(t, err)
	require.Empty(t, saved.Memo)
	require.Equal(t, content.PersonaComments, saved.PersonaComments)
}

func TestGetOnlyReturnsToday(t *testing.T) {
	t.Parallel()

	svc, store, clock := newService(&fakeAI{}, nil, false)
	ctx := context.Background()

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.SaveDaily(ctx, news.DailyContent{Date: "2026-05-09", Memo: "昨日"}))
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.SaveDaily(ctx, news.DailyContent{Date: "2026-05-10", Memo: "今日"}))
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "今日", got.Memo)

	clock.today = "2026-05-11"
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}
