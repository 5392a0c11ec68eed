// Package daily produces the once-a-day AI memo shown at the top of the index.
package daily

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	recentWindow   = 24 * time.Hour
	fallbackCount  = 10
	maxTitles      = 15
	commentPersons = 2
)

// AI writes the memo and persona comments.
type AI interface {
	Configured() bool
	DailyMemo(ctx context.Context, titles []string) (string, error)
	PersonaComment(ctx context.Context, p news.Persona, titles []string) (string, error)
}

// ArticleSource lists the articles currently on the site.
type ArticleSource interface {
	News(ctx context.Context, force bool) ([]news.Article, error)
}

// Clock knows the edition date.
type Clock interface {
	Now() time.Time
	Today() string
}

// Service caches today's content in memory and persists it through the store.
type Service struct {
	store    news.DailyStore
	ai       AI
	articles ArticleSource
	clock    Clock
	disabled bool
	logger   *zap.Logger
	// picks persona indexes; swapped in tests
	perm func(n int) []int

	mu      sync.Mutex
	current *news.DailyContent
}

// New builds a Service. When updatesDisabled is set Generate never calls the AI.
func New(store news.DailyStore, ai AI, articles ArticleSource, clock Clock, updatesDisabled bool, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		ai:       ai,
		articles: articles,
		clock:    clock,
		disabled: updatesDisabled,
		logger:   logging.OrNop(logger).Named("daily"),
		perm:     rand.Perm,
	}
}

// Get returns today's content, or nil when none has been generated today.
func (s *Service) Get(ctx context.Context) (*news.DailyContent, error) {
	today := s.clock.Today()
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil && cur.Date == today {
		return cur, nil
	}

	stored, err := s.store.LoadDaily(ctx)
	if errors.Is(err, news.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load daily: %w", err)
	}
	if stored.Date != today {
		return nil, nil
	}
	s.mu.Lock()
	s.current = &stored
	s.mu.Unlock()
	return &stored, nil
}

// Generate writes and persists today's content. It returns nil content when
// skipped.
func (s *Service) Generate(ctx context.Context) (*news.DailyContent, error) {
	if s.disabled || s.ai == nil || !s.ai.Configured() {
		s.logger.Debug("daily generation skipped")
		return nil, nil
	}
	items, err := s.articles.News(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	titles := s.pickTitles(items)
	if len(titles) == 0 {
		return nil, nil
	}

	// A failed memo is stored empty next to the comments.
	memo, err := s.ai.DailyMemo(ctx, titles)
	if err != nil {
		s.logger.Warn("daily memo", zap.Error(err))
		memo = ""
	}

	comments := make([]news.PersonaComment, 0, commentPersons)
	for _, idx := range s.perm(len(news.Personas))[:commentPersons] {
		p := news.Personas[idx]
		text, err := s.ai.PersonaComment(ctx, p, titles)
		if err != nil {
			s.logger.Warn("persona comment", zap.String("persona", p.Name), zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		comments = append(comments, news.PersonaComment{Name: p.Name, Emoji: p.Emoji, Comment: text})
	}

	content := news.DailyContent{
		Date:            s.clock.Today(),
		Memo:            memo,
		PersonaComments: comments,
		UpdatedAt:       s.clock.Now(),
	}
	if err := s.store.SaveDaily(ctx, content); err != nil {
		return nil, fmt.Errorf("save daily: %w", err)
	}
	s.mu.Lock()
	s.current = &content
	s.mu.Unlock()
	s.logger.Info("daily content generated", zap.String("date", content.Date), zap.Int("comments", len(comments)))
	return &content, nil
}

func (s *Service) pickTitles(items []news.Article) []string {
	recent := news.PublishedSince(items, s.clock.Now().Add(-recentWindow))
	if len(recent) == 0 {
		recent = items[:min(fallbackCount, len(items))]
	}
	titles := make([]string, 0, maxTitles)
	for _, a := range recent {
		if len(titles) == maxTitles {
			break
		}
		titles = append(titles, a.Title)
	}
	return titles
}
