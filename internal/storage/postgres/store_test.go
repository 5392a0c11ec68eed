package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock, Tables{})
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, Tables{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, Tables{Articles: "articles; DROP TABLE x"})
	require.ErrorContains(t, err, "invalid table name")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS explanation_cache").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ai_daily").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticlesCountsInserted(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs("a", "A", "https://example.com/a", "summary", published, "NHK", news.CategoryDomestic, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO articles").
		WithArgs("b", "B", "", "", time.Time{}, "", news.CategoryGeneral, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := store.SaveArticles(context.Background(), []news.Article{
		{ID: "a", Title: "A", Link: "https://example.com/a", Summary: "summary", Published: published, Source: "NHK", Category: news.CategoryDomestic},
		{ID: "b", Title: "B"},
		{Title: "no id"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArticleNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, title").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetArticle(context.Background(), "missing")
	require.ErrorIs(t, err, news.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticles(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "title", "link", "summary", "published", "source", "category", "image_url"}).
		AddRow("b", "B", "l", "s", published, "NHK", "国内", "").
		AddRow("a", "A", "l", "s", published, "BBC News", "国際", "https://img")
	mock.ExpectQuery("SELECT id, title, link, summary, published, source, category, image_url FROM articles ORDER BY added_at DESC").
		WillReturnRows(rows)

	list, err := store.ListArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "https://img", list[1].ImageURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndDelete(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM articles`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec("DELETE FROM articles").WithArgs("a").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM explanation_cache").WithArgs("a").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := context.Background()
	n, err := store.CountArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	existed, err := store.DeleteArticle(ctx, "a")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.DeleteExplanation(ctx, "a")
	require.NoError(t, err)
	require.False(t, existed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExplanation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"inline_blocks", "p0", "p1", "p2", "p3", "p4", "qu", "vote", "created_at"}).
		AddRow(`[{"type":"text","content":"本文"}]`, "a", "b", "", "", "", `{"what":"w","why":"y","how":"h"}`, "", created)
	mock.ExpectQuery("SELECT inline_blocks::text").WithArgs("a1").WillReturnRows(rows)

	e, err := store.GetExplanation(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", e.ArticleID)
	require.Equal(t, "本文", e.Blocks[0].Content)
	require.Equal(t, []string{"a", "b", "", "", ""}, e.Personas)
	require.Equal(t, "w", e.QuickUnderstand.What)
	require.Nil(t, e.Vote)
	require.Equal(t, created, e.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExplanationBadFallbackIsMiss(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"inline_blocks", "p0", "p1", "p2", "p3", "p4", "qu", "vote", "created_at"}).
		AddRow(`[{"type":"text","content":"x"},{"type":"explain","content":"（生成に失敗しました。しばらくしてから再度お試しください。）"}]`,
			"", "", "", "", "", "", "", time.Now())
	mock.ExpectQuery("SELECT inline_blocks::text").WithArgs("a1").WillReturnRows(rows)

	_, err := store.GetExplanation(context.Background(), "a1")
	require.ErrorIs(t, err, news.ErrNotFound)
}

func TestSaveExplanation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO explanation_cache").
		WithArgs("a1", `[{"type":"text","content":"本文"}]`, "p0", "", "", "", "",
			(*string)(nil), pgxmock.AnyArg(), created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveExplanation(context.Background(), news.Explanation{
		ArticleID: "a1",
		Blocks:    []news.Block{{Type: news.BlockText, Content: "本文"}},
		Personas:  []string{"p0"},
		Vote:      &news.VoteQuestion{Question: "q"},
		CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDaily(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT payload::text FROM ai_daily").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO ai_daily").
		WithArgs("2025-03-01", pgxmock.AnyArg(), updated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT payload::text FROM ai_daily").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(`{"date":"2025-03-01","memo":"m","persona_comments":[]}`))

	ctx := context.Background()
	_, err := store.LoadDaily(ctx)
	require.ErrorIs(t, err, news.ErrNotFound)

	require.NoError(t, store.SaveDaily(ctx, news.DailyContent{Date: "2025-03-01", Memo: "m", UpdatedAt: updated}))

	d, err := store.LoadDaily(ctx)
	require.NoError(t, err)
	require.Equal(t, "m", d.Memo)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, "postgres", store.Name())
}
