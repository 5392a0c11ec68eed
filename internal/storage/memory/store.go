// Package memory provides in-process implementations of the persistence
// interfaces for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

type storedArticle struct {
	article news.Article
	seq     uint64
}

// Store keeps articles, explanations and the daily content in maps.
type Store struct {
	mu           sync.RWMutex
	seq          uint64
	articles     map[string]storedArticle
	explanations map[string]news.Explanation
	daily        *news.DailyContent
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		articles:     make(map[string]storedArticle),
		explanations: make(map[string]news.Explanation),
	}
}

// Name implements news.Store.
func (s *Store) Name() string { return "memory" }

// Close implements news.Store.
func (s *Store) Close() error { return nil }

// GetArticle returns the article or news.ErrNotFound.
func (s *Store) GetArticle(_ context.Context, id string) (news.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return news.Article{}, news.ErrNotFound
	}
	return a.article, nil
}

// ListArticles returns every article, most recently added first.
func (s *Store) ListArticles(_ context.Context) ([]news.Article, error) {
	s.mu.RLock()
	rows := make([]storedArticle, 0, len(s.articles))
	for _, a := range s.articles {
		rows = append(rows, a)
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	out := make([]news.Article, len(rows))
	for i, r := range rows {
		out[i] = r.article
	}
	return out, nil
}

// SaveArticles inserts articles that are not stored yet.
func (s *Store) SaveArticles(_ context.Context, articles []news.Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, a := range articles {
		if _, ok := s.articles[a.ID]; ok || a.ID == "" {
			continue
		}
		s.put(a)
		inserted++
	}
	return inserted, nil
}

// SaveArticle upserts a single article and marks it most recently added.
func (s *Store) SaveArticle(_ context.Context, a news.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(a)
	return nil
}

func (s *Store) put(a news.Article) {
	s.seq++
	s.articles[a.ID] = storedArticle{article: record.Article(a), seq: s.seq}
}

// DeleteArticle removes the article and reports whether it existed.
func (s *Store) DeleteArticle(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.articles[id]
	delete(s.articles, id)
	return ok, nil
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles), nil
}

// GetExplanation returns a usable cached explanation.
func (s *Store) GetExplanation(_ context.Context, articleID string) (news.Explanation, error) {
	s.mu.RLock()
	e, ok := s.explanations[articleID]
	s.mu.RUnlock()
	if !ok {
		return news.Explanation{}, news.ErrNotFound
	}
	return record.Loaded(e)
}

// SaveExplanation replaces the cached explanation for its article.
func (s *Store) SaveExplanation(_ context.Context, e news.Explanation) error {
	e = record.Explanation(e)
	e.Blocks = append([]news.Block(nil), e.Blocks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.explanations[e.ArticleID] = e
	return nil
}

// DeleteExplanation drops the cache entry and reports whether it existed.
func (s *Store) DeleteExplanation(_ context.Context, articleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.explanations[articleID]
	delete(s.explanations, articleID)
	return ok, nil
}

// ExplainedIDs returns the IDs that have a cached explanation.
func (s *Store) ExplainedIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.explanations))
	for id := range s.explanations {
		out[id] = struct{}{}
	}
	return out, nil
}

// LoadDaily returns the last saved daily content.
func (s *Store) LoadDaily(_ context.Context) (news.DailyContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.daily == nil {
		return news.DailyContent{}, news.ErrNotFound
	}
	return *s.daily, nil
}

// SaveDaily replaces the daily content.
func (s *Store) SaveDaily(_ context.Context, content news.DailyContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := content
	c.PersonaComments = append([]news.PersonaComment(nil), content.PersonaComments...)
	s.daily = &c
	return nil
}
