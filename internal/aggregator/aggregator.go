// Package aggregator serves the explained articles and trends the site shows,
// caching both in memory between refreshes.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

// ErrUpdatesDisabled is returned by operations that would harvest or call the
// AI while updates are turned off.
var ErrUpdatesDisabled = errors.New("updates disabled")

// FeedSource harvests feed items.
type FeedSource interface {
	Fetch(ctx context.Context) ([]news.Article, error)
}

// TrendSource returns trending keywords.
type TrendSource interface {
	Fetch(ctx context.Context) []news.Trend
}

// Processor explains new feed items.
type Processor interface {
	ProcessNew(ctx context.Context, items []news.Article, limit int, keywords []string) int
}

// Config sizes the caches and ingestion runs.
type Config struct {
	ItemsPerPage     int
	DisplayLimit     int
	MaxPerRun        int
	StartupThreshold int
	TrendTTL         time.Duration
	UpdatesDisabled  bool
	AIConfigured     bool
}

// Status summarizes storage and configuration for /api/status.
type Status struct {
	ArticlesInDB    int    `json:"articles_in_db"`
	AIProcessed     int    `json:"ai_processed"`
	Displayable     int    `json:"displayable"`
	OpenAIKeySet    bool   `json:"openai_key_set"`
	UpdatesDisabled bool   `json:"updates_disabled"`
	StorageBackend  string `json:"storage_backend"`
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	store  news.Store
	feed   FeedSource
	trends TrendSource
	proc   Processor
	clock  news.Clock
	cfg    Config
	logger *zap.Logger

	// serializes forced refreshes so concurrent triggers do not double-process
	refreshMu sync.Mutex

	mu       sync.RWMutex
	articles []news.Article
	trendBuf []news.Trend
	trendsAt time.Time
}

// New builds an Aggregator.
func New(store news.Store, feed FeedSource, trends TrendSource, proc Processor, clock news.Clock, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = 24
	}
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = 2000
	}
	if cfg.TrendTTL <= 0 {
		cfg.TrendTTL = 10 * time.Minute
	}
	return &Aggregator{
		store:  store,
		feed:   feed,
		trends: trends,
		proc:   proc,
		clock:  clock,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("aggregator"),
	}
}

// UpdatesDisabled reports whether harvesting is turned off.
func (a *Aggregator) UpdatesDisabled() bool {
	return a.cfg.UpdatesDisabled
}

// News returns explained articles, most recently added first. Without force a
// warm cache is returned as is. With force and updates enabled, feeds are
// harvested and new items explained before the cache is reloaded.
func (a *Aggregator) News(ctx context.Context, force bool) ([]news.Article, error) {
	if !force {
		a.mu.RLock()
		cached := a.articles
		a.mu.RUnlock()
		if len(cached) > 0 {
			return append([]news.Article(nil), cached...), nil
		}
	}
	if force && !a.cfg.UpdatesDisabled {
		a.refreshMu.Lock()
		defer a.refreshMu.Unlock()
		a.ingest(ctx)
	}
	return a.Reload(ctx)
}

func (a *Aggregator) ingest(ctx context.Context) {
	items, err := a.feed.Fetch(ctx)
	if err != nil {
		a.logger.Warn("fetch feeds", zap.Error(err))
	}
	if len(items) == 0 {
		return
	}
	keywords := news.Keywords(a.Trends(ctx, true))
	added := a.proc.ProcessNew(ctx, items, a.cfg.MaxPerRun, keywords)
	a.logger.Info("news refreshed", zap.Int("feed_items", len(items)), zap.Int("added", added))
}

// Reload rebuilds the article cache from the store without harvesting.
func (a *Aggregator) Reload(ctx context.Context) ([]news.Article, error) {
	explained, err := a.store.ExplainedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list explained ids: %w", err)
	}
	all, err := a.store.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	shown := make([]news.Article, 0, len(explained))
	for _, art := range all {
		if _, ok := explained[art.ID]; ok {
			shown = append(shown, art)
			if len(shown) == a.cfg.DisplayLimit {
				break
			}
		}
	}
	a.mu.Lock()
	a.articles = shown
	a.mu.Unlock()
	return append([]news.Article(nil), shown...), nil
}

// Paginate computes page bounds. The page is clamped into [1, TotalPages]
// and there is always at least one page.
func Paginate(total, perPage, page int) news.Pagination {
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	page = max(1, min(page, totalPages))
	return news.Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// ByCategory returns one page of articles grouped by category.
func (a *Aggregator) ByCategory(ctx context.Context, page int) ([]news.CategoryGroup, news.Pagination, error) {
	items, err := a.News(ctx, false)
	if err != nil {
		return nil, news.Pagination{}, err
	}
	p := Paginate(len(items), a.cfg.ItemsPerPage, page)
	start := (p.Page - 1) * p.PerPage
	end := min(start+p.PerPage, len(items))
	return news.GroupByCategory(items[start:end]), p, nil
}

// Trends returns trending keywords, refetching when forced or stale.
func (a *Aggregator) Trends(ctx context.Context, force bool) []news.Trend {
	now := a.clock.Now()
	a.mu.RLock()
	cached, at := a.trendBuf, a.trendsAt
	a.mu.RUnlock()
	if !force && len(cached) > 0 && now.Sub(at) <= a.cfg.TrendTTL {
		return cached
	}
	if a.trends == nil {
		return cached
	}
	fresh := a.trends.Fetch(ctx)
	a.mu.Lock()
	a.trendBuf, a.trendsAt = fresh, now
	a.mu.Unlock()
	return fresh
}

// Article looks in the cache first, then the store.
func (a *Aggregator) Article(ctx context.Context, id string) (news.Article, error) {
	a.mu.RLock()
	for _, art := range a.articles {
		if art.ID == id {
			a.mu.RUnlock()
			return art, nil
		}
	}
	a.mu.RUnlock()
	return a.store.GetArticle(ctx, id)
}

// Status reports storage counts and feature flags.
func (a *Aggregator) Status(ctx context.Context) (Status, error) {
	explained, err := a.store.ExplainedIDs(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list explained ids: %w", err)
	}
	all, err := a.store.ListArticles(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list articles: %w", err)
	}
	displayable := 0
	for _, art := range all {
		if _, ok := explained[art.ID]; ok {
			displayable++
		}
	}
	return Status{
		ArticlesInDB:    len(all),
		AIProcessed:     len(explained),
		Displayable:     displayable,
		OpenAIKeySet:    a.cfg.AIConfigured,
		UpdatesDisabled: a.cfg.UpdatesDisabled,
		StorageBackend:  a.store.Name(),
	}, nil
}

// Bootstrap fills a sparse site at startup, then warms both caches.
func (a *Aggregator) Bootstrap(ctx context.Context) {
	if !a.cfg.UpdatesDisabled {
		a.fillSparse(ctx)
	}
	if _, err := a.News(ctx, true); err != nil {
		a.logger.Warn("warm news cache", zap.Error(err))
	}
	a.Trends(ctx, true)
}

func (a *Aggregator) fillSparse(ctx context.Context) {
	explained, err := a.store.ExplainedIDs(ctx)
	if err != nil {
		a.logger.Warn("list explained ids", zap.Error(err))
		return
	}
	if len(explained) >= a.cfg.StartupThreshold {
		return
	}
	items, err := a.feed.Fetch(ctx)
	if err != nil {
		a.logger.Warn("fetch feeds", zap.Error(err))
		return
	}
	added := a.proc.ProcessNew(ctx, items, a.cfg.MaxPerRun, nil)
	a.logger.Info("startup fill", zap.Int("explained", len(explained)), zap.Int("added", added))
}
