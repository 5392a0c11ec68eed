package record

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

func TestArticleTruncatesSummary(t *testing.T) {
	t.Parallel()

	a := Article(news.Article{ID: "a", Summary: strings.Repeat("あ", 5000)})
	require.Equal(t, news.StoredSummaryLimit, news.RuneLen(a.Summary))
	require.Equal(t, news.CategoryGeneral, a.Category)
}

func TestExplanationPadsPersonas(t *testing.T) {
	t.Parallel()

	e := Explanation(news.Explanation{Personas: []string{"a"}})
	require.Len(t, e.Personas, news.PersonaCount)
	require.NotNil(t, e.Blocks)

	e = Explanation(news.Explanation{Personas: []string{"1", "2", "3", "4", "5", "6"}})
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, e.Personas)
}

func TestLoadedRejectsBadFallback(t *testing.T) {
	t.Parallel()

	_, err := Loaded(news.Explanation{Blocks: []news.Block{
		{Type: news.BlockText, Content: "body"},
		{Type: news.BlockExplain, Content: "（構造化に失敗しました。しばらくしてから再度お試しください。）"},
	}})
	require.True(t, errors.Is(err, news.ErrNotFound))

	e, err := Loaded(news.Explanation{Blocks: []news.Block{{Type: news.BlockText, Content: "<b>ok</b>"}}})
	require.NoError(t, err)
	require.Equal(t, "ok", e.Blocks[0].Content)
	require.Len(t, e.Personas, news.PersonaCount)
}

func TestBlocksRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := EncodeBlocks(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", raw)

	blocks, err := DecodeBlocks(`[{"type":"navigator_section","section":"facts","content":"x"}]`)
	require.NoError(t, err)
	require.Equal(t, "facts", blocks[0].Section)

	_, err = DecodeBlocks("{")
	require.Error(t, err)
}

func TestOptional(t *testing.T) {
	t.Parallel()

	raw, err := EncodeOptional[news.QuickUnderstand](nil)
	require.NoError(t, err)
	require.Nil(t, raw)

	raw, err = EncodeOptional(&news.QuickUnderstand{What: "w"})
	require.NoError(t, err)
	qu, err := DecodeOptional[news.QuickUnderstand](raw)
	require.NoError(t, err)
	require.Equal(t, "w", qu.What)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	require.Equal(t, now, ParseTime(FormatTime(now)))
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ParseTime("2025-01-02 03:04:05"))
	require.True(t, ParseTime("").IsZero())
	require.True(t, ParseTime("garbage").IsZero())
	require.Empty(t, FormatTime(time.Time{}))
}

func TestFormatTimeSortsLexically(t *testing.T) {
	t.Parallel()

	a := time.Date(2025, 1, 2, 3, 4, 5, 100_000_000, time.UTC)
	b := time.Date(2025, 1, 2, 3, 4, 5, 120_000_000, time.UTC)
	require.Less(t, FormatTime(a), FormatTime(b))
}
