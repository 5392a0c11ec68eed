// Package firestore persists articles and explanations in Cloud Firestore.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

// Collection names.
const (
	CollectionArticles     = "articles"
	CollectionExplanations = "explanations"
	CollectionDaily        = "ai_daily"
	dailyDoc               = "latest"
)

// Store implements news.Store on Firestore.
type Store struct {
	client *firestore.Client
}

// Open dials Firestore for projectID with a service account JSON credential.
func Open(ctx context.Context, projectID string, credentials []byte, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	if len(credentials) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentials))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Name implements news.Store.
func (s *Store) Name() string { return "firestore" }

// Close releases the client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close firestore: %w", err)
	}
	return nil
}

func (s *Store) articles() *firestore.CollectionRef {
	return s.client.Collection(CollectionArticles)
}

func (s *Store) explanations() *firestore.CollectionRef {
	return s.client.Collection(CollectionExplanations)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// GetArticle returns the article or news.ErrNotFound.
func (s *Store) GetArticle(ctx context.Context, id string) (news.Article, error) {
	snap, err := s.articles().Doc(id).Get(ctx)
	if isNotFound(err) {
		return news.Article{}, news.ErrNotFound
	}
	if err != nil {
		return news.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return decodeArticle(snap)
}

// ListArticles returns every article ordered by added_at, newest first.
func (s *Store) ListArticles(ctx context.Context) ([]news.Article, error) {
	snaps, err := s.articles().OrderBy("added_at", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	out := make([]news.Article, 0, len(snaps))
	for _, snap := range snaps {
		a, err := decodeArticle(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SaveArticles creates documents for unseen IDs.
func (s *Store) SaveArticles(ctx context.Context, articles []news.Article) (int, error) {
	inserted := 0
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		_, err := s.articles().Doc(a.ID).Create(ctx, articleFields(a))
		if status.Code(err) == codes.AlreadyExists {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("create article %s: %w", a.ID, err)
		}
		inserted++
	}
	return inserted, nil
}

// SaveArticle upserts an article and refreshes added_at. The
// has_explanation flag is preserved.
func (s *Store) SaveArticle(ctx context.Context, a news.Article) error {
	if _, err := s.articles().Doc(a.ID).Set(ctx, articleFields(a), firestore.MergeAll); err != nil {
		return fmt.Errorf("save article %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArticle removes the article and reports whether it existed.
func (s *Store) DeleteArticle(ctx context.Context, id string) (bool, error) {
	return deleteDoc(ctx, s.articles().Doc(id))
}

// CountArticles returns the number of article documents.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	refs, err := collectRefs(s.articles().DocumentRefs(ctx))
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return len(refs), nil
}

// GetExplanation returns a usable cached explanation.
func (s *Store) GetExplanation(ctx context.Context, articleID string) (news.Explanation, error) {
	snap, err := s.explanations().Doc(articleID).Get(ctx)
	if isNotFound(err) {
		return news.Explanation{}, news.ErrNotFound
	}
	if err != nil {
		return news.Explanation{}, fmt.Errorf("get explanation %s: %w", articleID, err)
	}
	var doc explanationDoc
	if err := snap.DataTo(&doc); err != nil {
		return news.Explanation{}, fmt.Errorf("decode explanation %s: %w", articleID, err)
	}
	e, err := doc.explanation(articleID)
	if err != nil {
		return news.Explanation{}, err
	}
	return record.Loaded(e)
}

// SaveExplanation writes the explanation and flags the article.
func (s *Store) SaveExplanation(ctx context.Context, e news.Explanation) error {
	fields, err := explanationFields(record.Explanation(e))
	if err != nil {
		return err
	}
	if _, err := s.explanations().Doc(e.ArticleID).Set(ctx, fields); err != nil {
		return fmt.Errorf("save explanation %s: %w", e.ArticleID, err)
	}
	return s.flagExplained(ctx, e.ArticleID, true)
}

// DeleteExplanation drops the cache entry and clears the article flag.
func (s *Store) DeleteExplanation(ctx context.Context, articleID string) (bool, error) {
	existed, err := deleteDoc(ctx, s.explanations().Doc(articleID))
	if err != nil || !existed {
		return existed, err
	}
	return true, s.flagExplained(ctx, articleID, false)
}

func (s *Store) flagExplained(ctx context.Context, articleID string, v bool) error {
	_, err := s.articles().Doc(articleID).Update(ctx, []firestore.Update{{Path: "has_explanation", Value: v}})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("flag article %s: %w", articleID, err)
	}
	return nil
}

// ExplainedIDs unions flagged articles with explanation document IDs, which
// covers articles written before the flag existed.
func (s *Store) ExplainedIDs(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	snaps, err := s.articles().Where("has_explanation", "==", true).Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query explained articles: %w", err)
	}
	for _, snap := range snaps {
		out[snap.Ref.ID] = struct{}{}
	}
	refs, err := collectRefs(s.explanations().DocumentRefs(ctx))
	if err != nil {
		return nil, fmt.Errorf("list explanations: %w", err)
	}
	for _, ref := range refs {
		out[ref.ID] = struct{}{}
	}
	return out, nil
}

// LoadDaily returns ai_daily/latest.
func (s *Store) LoadDaily(ctx context.Context) (news.DailyContent, error) {
	snap, err := s.client.Collection(CollectionDaily).Doc(dailyDoc).Get(ctx)
	if isNotFound(err) {
		return news.DailyContent{}, news.ErrNotFound
	}
	if err != nil {
		return news.DailyContent{}, fmt.Errorf("load daily: %w", err)
	}
	var doc dailyDocument
	if err := snap.DataTo(&doc); err != nil {
		return news.DailyContent{}, fmt.Errorf("decode daily: %w", err)
	}
	return doc.content(), nil
}

// SaveDaily replaces ai_daily/latest.
func (s *Store) SaveDaily(ctx context.Context, content news.DailyContent) error {
	if _, err := s.client.Collection(CollectionDaily).Doc(dailyDoc).Set(ctx, newDailyDocument(content)); err != nil {
		return fmt.Errorf("save daily: %w", err)
	}
	return nil
}

func deleteDoc(ctx context.Context, ref *firestore.DocumentRef) (bool, error) {
	_, err := ref.Get(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", ref.Path, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return false, fmt.Errorf("delete %s: %w", ref.Path, err)
	}
	return true, nil
}

func collectRefs(it *firestore.DocumentRefIterator) ([]*firestore.DocumentRef, error) {
	var out []*firestore.DocumentRef
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
}

func decodeArticle(snap *firestore.DocumentSnapshot) (news.Article, error) {
	var doc articleDoc
	if err := snap.DataTo(&doc); err != nil {
		return news.Article{}, fmt.Errorf("decode article %s: %w", snap.Ref.ID, err)
	}
	return doc.article(snap.Ref.ID), nil
}

// decodeLoose converts a value stored either as a map or as JSON text.
func decodeLoose[T any](v any) (*T, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		raw = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode %T: %w", val, err)
		}
		raw = b
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", out, err)
	}
	return &out, nil
}
