package scoring

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Scorer combines search demand, topic value, trends and freshness.
type Scorer struct {
	suggester Suggester
	logger    *zap.Logger
}

// NewScorer builds a Scorer. A nil suggester disables autocomplete scoring.
func NewScorer(suggester Suggester, logger *zap.Logger) *Scorer {
	return &Scorer{suggester: suggester, logger: logging.OrNop(logger).Named("scoring")}
}

// Score returns the article's score; higher is better.
func (s *Scorer) Score(ctx context.Context, a news.Article, trends []string, now time.Time) float64 {
	kw1 := ExtractKeywords(a.Title, a.Summary)
	score := s.autocompleteScore(ctx, kw1, NGrams(kw1, 2), QuestionVariants(kw1))

	text := a.Title + " " + a.Summary
	score += float64(3 * HighValueCount(text))

	lower := strings.ToLower(text)
	for _, kw := range trends {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			score += 5
		}
	}

	if !a.Published.IsZero() {
		hours := now.Sub(a.Published).Hours()
		score += math.Max(0, 15-hours*0.5)
	}
	return score
}

func (s *Scorer) autocompleteScore(ctx context.Context, kw1, kw2, questions []string) float64 {
	if s.suggester == nil {
		return 0
	}
	score := 0.0
	for _, kw := range head(kw1, 8) {
		score += float64(s.suggester.Count(ctx, kw))
	}
	for _, kw := range head(kw2, 5) {
		score += float64(s.suggester.Count(ctx, kw)) * 1.5
	}
	for _, kw := range head(questions, 4) {
		score += float64(s.suggester.Count(ctx, kw)) * 2
	}
	return score
}

// RankAndFilter drops low-value items and returns the limit best-scoring ones.
// When everything is filtered out the first limit items are returned unchanged.
func (s *Scorer) RankAndFilter(ctx context.Context, items []news.Article, trends []string, limit int, now time.Time) []news.Article {
	if limit < 0 {
		limit = 0
	}
	var filtered []news.Article
	for _, a := range items {
		if LightweightFilter(a.Title, a.Summary, a.Category) {
			filtered = append(filtered, a)
		}
	}
	s.logger.Info("lightweight filter", zap.Int("before", len(items)), zap.Int("after", len(filtered)))
	if len(filtered) == 0 {
		return head(items, limit)
	}

	type scored struct {
		score float64
		item  news.Article
	}
	ranked := make([]scored, 0, len(filtered))
	for _, a := range filtered {
		ranked = append(ranked, scored{score: s.Score(ctx, a, trends, now), item: a})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]news.Article, 0, limit)
	for _, r := range head(ranked, limit) {
		out = append(out, r.item)
	}
	return out
}

func head[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
