// Package storetest exercises a news.Store implementation against the
// behaviour every backend must share.
package storetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) news.Store) {
	t.Helper()

	t.Run("articles", func(t *testing.T) { testArticles(t, newStore(t)) })
	t.Run("explanations", func(t *testing.T) { testExplanations(t, newStore(t)) })
	t.Run("daily", func(t *testing.T) { testDaily(t, newStore(t)) })
}

func testArticles(t *testing.T, s news.Store) {
	ctx := context.Background()
	published := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	n, err := s.SaveArticles(ctx, []news.Article{
		{ID: "a", Title: "A", Link: "https://example.com/a", Summary: strings.Repeat("要", 4100), Published: published, Source: "NHK", Category: news.CategoryDomestic},
		{ID: "b", Title: "B", Published: published},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.SaveArticles(ctx, []news.Article{{ID: "a", Title: "dup"}, {ID: "c", Title: "C"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	a, err := s.GetArticle(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "A", a.Title)
	require.Equal(t, "NHK", a.Source)
	require.Equal(t, news.CategoryDomestic, a.Category)
	require.True(t, published.Equal(a.Published), "published = %v", a.Published)
	require.Equal(t, news.StoredSummaryLimit, news.RuneLen(a.Summary))

	require.NoError(t, s.SaveArticle(ctx, news.Article{ID: "b", Title: "B2"}))
	list, err := s.ListArticles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "B2", list[0].Title)
	require.Equal(t, "c", list[1].ID)

	count, err := s.CountArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	existed, err := s.DeleteArticle(ctx, "c")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = s.DeleteArticle(ctx, "c")
	require.NoError(t, err)
	require.False(t, existed)

	_, err = s.GetArticle(ctx, "c")
	require.ErrorIs(t, err, news.ErrNotFound)
}

func testExplanations(t *testing.T, s news.Store) {
	ctx := context.Background()

	_, err := s.GetExplanation(ctx, "missing")
	require.ErrorIs(t, err, news.ErrNotFound)

	require.NoError(t, s.SaveExplanation(ctx, news.Explanation{
		ArticleID: "a",
		Blocks: []news.Block{
			{Type: news.BlockText, Content: "本文"},
			{Type: news.BlockExplain, Content: "解説"},
		},
		Personas:        []string{"p0", "p1"},
		QuickUnderstand: &news.QuickUnderstand{What: "w", Why: "y", How: "h"},
	}))
	require.NoError(t, s.SaveExplanation(ctx, news.Explanation{
		ArticleID: "bad",
		Blocks: []news.Block{
			{Type: news.BlockText, Content: "x"},
			{Type: news.BlockExplain, Content: "（構造化に失敗しました。しばらくしてから再度お試しください。）"},
		},
	}))

	e, err := s.GetExplanation(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "a", e.ArticleID)
	require.Len(t, e.Blocks, 2)
	require.Equal(t, []string{"p0", "p1", "", "", ""}, e.Personas)
	require.NotNil(t, e.QuickUnderstand)
	require.Equal(t, "y", e.QuickUnderstand.Why)
	require.Nil(t, e.Vote)

	_, err = s.GetExplanation(ctx, "bad")
	require.ErrorIs(t, err, news.ErrNotFound)

	e.Vote = &news.VoteQuestion{Question: "q", Options: []news.VoteOption{{ID: "a", Label: "A"}}}
	require.NoError(t, s.SaveExplanation(ctx, e))
	e, err = s.GetExplanation(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, e.Vote)
	require.Equal(t, "A", e.Vote.Options[0].Label)

	ids, err := s.ExplainedIDs(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, "a")

	existed, err := s.DeleteExplanation(ctx, "a")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = s.DeleteExplanation(ctx, "a")
	require.NoError(t, err)
	require.False(t, existed)
}

func testDaily(t *testing.T, s news.Store) {
	ctx := context.Background()

	_, err := s.LoadDaily(ctx)
	require.ErrorIs(t, err, news.ErrNotFound)

	want := news.DailyContent{
		Date: "2025-03-01",
		Memo: "円安に注目",
		PersonaComments: []news.PersonaComment{
			{Name: "慎重派の太郎", Emoji: "🧐", Comment: "慎重に"},
		},
		UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveDaily(ctx, want))
	want.Memo = "更新"
	require.NoError(t, s.SaveDaily(ctx, want))

	got, err := s.LoadDaily(ctx)
	require.NoError(t, err)
	require.Equal(t, "更新", got.Memo)
	require.Equal(t, "2025-03-01", got.Date)
	require.Len(t, got.PersonaComments, 1)
}
