// Package sqlite persists articles and explanations in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	link TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	published TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	added_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS explanation_cache (
	article_id TEXT PRIMARY KEY,
	inline_blocks TEXT NOT NULL,
	persona_0 TEXT NOT NULL DEFAULT '',
	persona_1 TEXT NOT NULL DEFAULT '',
	persona_2 TEXT NOT NULL DEFAULT '',
	persona_3 TEXT NOT NULL DEFAULT '',
	persona_4 TEXT NOT NULL DEFAULT '',
	quick_understand TEXT,
	vote_data TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS ai_daily (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

const articleColumns = `id, title, link, summary, published, source, category, image_url`

// Store implements news.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Name implements news.Store.
func (s *Store) Name() string { return "sqlite" }

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (news.Article, error) {
	var (
		a         news.Article
		published string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Link, &a.Summary, &published, &a.Source, &a.Category, &a.ImageURL); err != nil {
		return news.Article{}, err
	}
	a.Published = record.ParseTime(published)
	return a, nil
}

func articleArgs(a news.Article) []any {
	a = record.Article(a)
	return []any{a.ID, a.Title, a.Link, a.Summary, record.FormatTime(a.Published), a.Source, a.Category, a.ImageURL}
}

// GetArticle returns the article or news.ErrNotFound.
func (s *Store) GetArticle(ctx context.Context, id string) (news.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return news.Article{}, news.ErrNotFound
	}
	if err != nil {
		return news.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// ListArticles returns every article, most recently added first.
func (s *Store) ListArticles(ctx context.Context) ([]news.Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY added_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()
	var out []news.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// SaveArticles inserts new articles in one transaction and skips known IDs.
func (s *Store) SaveArticles(ctx context.Context, articles []news.Article) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO articles (`+articleColumns+`, added_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	now := record.FormatTime(time.Now())
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, append(articleArgs(a), now)...)
		if err != nil {
			return 0, fmt.Errorf("insert article %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// SaveArticle upserts a single article.
func (s *Store) SaveArticle(ctx context.Context, a news.Article) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO articles (`+articleColumns+`, added_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(articleArgs(a), record.FormatTime(time.Now()))...)
	if err != nil {
		return fmt.Errorf("save article %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArticle removes the article and reports whether it existed.
func (s *Store) DeleteArticle(ctx context.Context, id string) (bool, error) {
	return s.deleteRow(ctx, `DELETE FROM articles WHERE id = ?`, id)
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// GetExplanation returns a usable cached explanation.
func (s *Store) GetExplanation(ctx context.Context, articleID string) (news.Explanation, error) {
	var (
		blocks, created string
		personas        [news.PersonaCount]string
		qu, vote        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT inline_blocks, persona_0, persona_1, persona_2, persona_3, persona_4,
       quick_understand, vote_data, COALESCE(created_at, '')
FROM explanation_cache WHERE article_id = ?`, articleID).
		Scan(&blocks, &personas[0], &personas[1], &personas[2], &personas[3], &personas[4], &qu, &vote, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return news.Explanation{}, news.ErrNotFound
	}
	if err != nil {
		return news.Explanation{}, fmt.Errorf("get explanation %s: %w", articleID, err)
	}
	e := news.Explanation{
		ArticleID: articleID,
		Personas:  personas[:],
		CreatedAt: record.ParseTime(created),
	}
	if e.Blocks, err = record.DecodeBlocks(blocks); err != nil {
		return news.Explanation{}, err
	}
	if e.QuickUnderstand, err = record.DecodeOptional[news.QuickUnderstand](nullable(qu)); err != nil {
		return news.Explanation{}, err
	}
	if e.Vote, err = record.DecodeOptional[news.VoteQuestion](nullable(vote)); err != nil {
		return news.Explanation{}, err
	}
	return record.Loaded(e)
}

// SaveExplanation replaces the cached explanation for its article.
func (s *Store) SaveExplanation(ctx context.Context, e news.Explanation) error {
	e = record.Explanation(e)
	blocks, err := record.EncodeBlocks(e.Blocks)
	if err != nil {
		return err
	}
	qu, err := record.EncodeOptional(e.QuickUnderstand)
	if err != nil {
		return err
	}
	vote, err := record.EncodeOptional(e.Vote)
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO explanation_cache
	(article_id, inline_blocks, persona_0, persona_1, persona_2, persona_3, persona_4, quick_understand, vote_data, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ArticleID, blocks, e.Personas[0], e.Personas[1], e.Personas[2], e.Personas[3], e.Personas[4],
		qu, vote, record.FormatTime(created))
	if err != nil {
		return fmt.Errorf("save explanation %s: %w", e.ArticleID, err)
	}
	return nil
}

// DeleteExplanation drops the cache entry and reports whether it existed.
func (s *Store) DeleteExplanation(ctx context.Context, articleID string) (bool, error) {
	return s.deleteRow(ctx, `DELETE FROM explanation_cache WHERE article_id = ?`, articleID)
}

// ExplainedIDs returns the IDs that have a cached explanation.
func (s *Store) ExplainedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT article_id FROM explanation_cache`)
	if err != nil {
		return nil, fmt.Errorf("list explained ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan explained id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate explained ids: %w", err)
	}
	return out, nil
}

// LoadDaily returns the latest daily content.
func (s *Store) LoadDaily(ctx context.Context) (news.DailyContent, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM ai_daily WHERE id = 'latest'`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return news.DailyContent{}, news.ErrNotFound
	}
	if err != nil {
		return news.DailyContent{}, fmt.Errorf("load daily: %w", err)
	}
	d, err := record.DecodeOptional[news.DailyContent](&payload)
	if err != nil || d == nil {
		return news.DailyContent{}, fmt.Errorf("load daily: %w", errors.Join(err, news.ErrNotFound))
	}
	return *d, nil
}

// SaveDaily replaces the latest daily content.
func (s *Store) SaveDaily(ctx context.Context, content news.DailyContent) error {
	if content.UpdatedAt.IsZero() {
		content.UpdatedAt = time.Now().UTC()
	}
	payload, err := record.EncodeOptional(&content)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ai_daily (id, date, payload, updated_at) VALUES ('latest', ?, ?, ?)`,
		content.Date, *payload, record.FormatTime(content.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save daily: %w", err)
	}
	return nil
}

func (s *Store) deleteRow(ctx context.Context, query, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
