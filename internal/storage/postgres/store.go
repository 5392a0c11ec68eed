// Package postgres provides a Postgres-backed news.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Tables names the three tables used by the store.
type Tables struct {
	Articles     string
	Explanations string
	Daily        string
}

// DefaultTables mirrors the embedded SQLite schema.
var DefaultTables = Tables{
	Articles:     "articles",
	Explanations: "explanation_cache",
	Daily:        "ai_daily",
}

func (t Tables) withDefaults() Tables {
	if t.Articles == "" {
		t.Articles = DefaultTables.Articles
	}
	if t.Explanations == "" {
		t.Explanations = DefaultTables.Explanations
	}
	if t.Daily == "" {
		t.Daily = DefaultTables.Daily
	}
	return t
}

func (t Tables) validate() error {
	for _, name := range []string{t.Articles, t.Explanations, t.Daily} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Tables          Tables
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements news.Store on Postgres.
type Store struct {
	pool   pool
	tables Tables
}

// New connects to Postgres and creates the schema when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
	}
	tables := cfg.Tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, tables: tables}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, tables Tables) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	tables = tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return &Store{pool: p, tables: tables}, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	link TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	published TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	added_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
)`, s.tables.Articles),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	article_id TEXT PRIMARY KEY,
	inline_blocks JSONB NOT NULL,
	persona_0 TEXT NOT NULL DEFAULT '',
	persona_1 TEXT NOT NULL DEFAULT '',
	persona_2 TEXT NOT NULL DEFAULT '',
	persona_3 TEXT NOT NULL DEFAULT '',
	persona_4 TEXT NOT NULL DEFAULT '',
	quick_understand JSONB,
	vote_data JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.tables.Explanations),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.tables.Daily),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Name implements news.Store.
func (s *Store) Name() string { return "postgres" }

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func scanArticle(row pgx.Row) (news.Article, error) {
	var a news.Article
	err := row.Scan(&a.ID, &a.Title, &a.Link, &a.Summary, &a.Published, &a.Source, &a.Category, &a.ImageURL)
	if err != nil {
		return news.Article{}, err
	}
	a.Published = a.Published.UTC()
	return a, nil
}

const articleColumns = `id, title, link, summary, published, source, category, image_url`

func articleArgs(a news.Article) []any {
	a = record.Article(a)
	return []any{a.ID, a.Title, a.Link, a.Summary, a.Published, a.Source, a.Category, a.ImageURL}
}

// GetArticle returns the article or news.ErrNotFound.
func (s *Store) GetArticle(ctx context.Context, id string) (news.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, articleColumns, s.tables.Articles)
	a, err := scanArticle(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return news.Article{}, news.ErrNotFound
	}
	if err != nil {
		return news.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// ListArticles returns every article, most recently added first.
func (s *Store) ListArticles(ctx context.Context) ([]news.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY added_at DESC`, articleColumns, s.tables.Articles)
	rows, err := s.pool.Query(ctx, query)
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

// SaveArticles inserts articles whose IDs are not stored yet.
func (s *Store) SaveArticles(ctx context.Context, articles []news.Article) (int, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (id) DO NOTHING`,
		s.tables.Articles, articleColumns)
	inserted := 0
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		tag, err := s.pool.Exec(ctx, query, articleArgs(a)...)
		if err != nil {
			return inserted, fmt.Errorf("insert article %s: %w", a.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// SaveArticle upserts a single article and bumps its added_at.
func (s *Store) SaveArticle(ctx context.Context, a news.Article) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	link = EXCLUDED.link,
	summary = EXCLUDED.summary,
	published = EXCLUDED.published,
	source = EXCLUDED.source,
	category = EXCLUDED.category,
	image_url = EXCLUDED.image_url,
	added_at = clock_timestamp()`, s.tables.Articles, articleColumns)
	if _, err := s.pool.Exec(ctx, query, articleArgs(a)...); err != nil {
		return fmt.Errorf("save article %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArticle removes the article and reports whether it existed.
func (s *Store) DeleteArticle(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tables.Articles), id)
	if err != nil {
		return false, fmt.Errorf("delete article %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.tables.Articles)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// GetExplanation returns a usable cached explanation.
func (s *Store) GetExplanation(ctx context.Context, articleID string) (news.Explanation, error) {
	query := fmt.Sprintf(`SELECT inline_blocks::text, persona_0, persona_1, persona_2, persona_3, persona_4,
	COALESCE(quick_understand::text, ''), COALESCE(vote_data::text, ''), created_at
FROM %s WHERE article_id = $1`, s.tables.Explanations)
	var (
		blocks, qu, vote string
		personas         [news.PersonaCount]string
		e                = news.Explanation{ArticleID: articleID}
	)
	err := s.pool.QueryRow(ctx, query, articleID).
		Scan(&blocks, &personas[0], &personas[1], &personas[2], &personas[3], &personas[4], &qu, &vote, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return news.Explanation{}, news.ErrNotFound
	}
	if err != nil {
		return news.Explanation{}, fmt.Errorf("get explanation %s: %w", articleID, err)
	}
	e.Personas = personas[:]
	if e.Blocks, err = record.DecodeBlocks(blocks); err != nil {
		return news.Explanation{}, err
	}
	if e.QuickUnderstand, err = record.DecodeOptional[news.QuickUnderstand](&qu); err != nil {
		return news.Explanation{}, err
	}
	if e.Vote, err = record.DecodeOptional[news.VoteQuestion](&vote); err != nil {
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
		created = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO %s
	(article_id, inline_blocks, persona_0, persona_1, persona_2, persona_3, persona_4, quick_understand, vote_data, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (article_id) DO UPDATE SET
	inline_blocks = EXCLUDED.inline_blocks,
	persona_0 = EXCLUDED.persona_0,
	persona_1 = EXCLUDED.persona_1,
	persona_2 = EXCLUDED.persona_2,
	persona_3 = EXCLUDED.persona_3,
	persona_4 = EXCLUDED.persona_4,
	quick_understand = EXCLUDED.quick_understand,
	vote_data = EXCLUDED.vote_data,
	created_at = EXCLUDED.created_at`, s.tables.Explanations)
	_, err = s.pool.Exec(ctx, query,
		e.ArticleID, blocks, e.Personas[0], e.Personas[1], e.Personas[2], e.Personas[3], e.Personas[4],
		qu, vote, created)
	if err != nil {
		return fmt.Errorf("save explanation %s: %w", e.ArticleID, err)
	}
	return nil
}

// DeleteExplanation drops the cache entry and reports whether it existed.
func (s *Store) DeleteExplanation(ctx context.Context, articleID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE article_id = $1`, s.tables.Explanations), articleID)
	if err != nil {
		return false, fmt.Errorf("delete explanation %s: %w", articleID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExplainedIDs returns the IDs that have a cached explanation.
func (s *Store) ExplainedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT article_id FROM %s`, s.tables.Explanations))
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
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT payload::text FROM %s WHERE id = 'latest'`, s.tables.Daily)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return news.DailyContent{}, news.ErrNotFound
	}
	if err != nil {
		return news.DailyContent{}, fmt.Errorf("load daily: %w", err)
	}
	d, err := record.DecodeOptional[news.DailyContent](&payload)
	if err != nil {
		return news.DailyContent{}, err
	}
	if d == nil {
		return news.DailyContent{}, news.ErrNotFound
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
	query := fmt.Sprintf(`INSERT INTO %s (id, date, payload, updated_at) VALUES ('latest', $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET date = EXCLUDED.date, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		s.tables.Daily)
	if _, err := s.pool.Exec(ctx, query, content.Date, *payload, content.UpdatedAt); err != nil {
		return fmt.Errorf("save daily: %w", err)
	}
	return nil
}
