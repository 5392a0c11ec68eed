// Package trends collects trending search keywords used to rank articles.
package trends

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

// MaxTrends caps the merged keyword list.
const MaxTrends = 25

const browserAgent = "Mozilla/5.0 (compatible; NewsSite/1.0)"

// Source is one provider of trending keywords.
type Source interface {
	Name() string
	Trends(ctx context.Context) ([]news.Trend, error)
}

// Service merges trend sources in priority order.
type Service struct {
	sources []Source
	logger  *zap.Logger
}

// NewService builds a Service; nil sources are ignored.
func NewService(logger *zap.Logger, sources ...Source) *Service {
	var kept []Source
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Service{sources: kept, logger: logging.OrNop(logger).Named("trends")}
}

// Fetch returns the merged trends, deduplicated case-insensitively. A failing
// source contributes nothing.
func (s *Service) Fetch(ctx context.Context) []news.Trend {
	seen := make(map[string]struct{})
	var out []news.Trend
	for _, src := range s.sources {
		items, err := src.Trends(ctx)
		if err != nil {
			s.logger.Warn("trend source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		for _, t := range items {
			key := strings.ToLower(strings.TrimSpace(t.Keyword))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	if len(out) > MaxTrends {
		out = out[:MaxTrends]
	}
	return out
}
