// Package bolt persists articles and explanations in an embedded bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

var (
	bucketArticles     = []byte("articles")
	bucketExplanations = []byte("explanations")
	bucketDaily        = []byte("daily")
	keyLatest          = []byte("latest")
)

type articleRow struct {
	news.Article
	AddedAt time.Time `json:"added_at"`
	Seq     uint64    `json:"seq"`
}

// Store implements news.Store on bbolt.
type Store struct {
	db *bolt.DB
}

// Open creates the file and buckets when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketArticles, bucketExplanations, bucketDaily} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Name implements news.Store.
func (s *Store) Name() string { return "bolt" }

// Close releases the file lock.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt: %w", err)
	}
	return nil
}

// GetArticle returns the article or news.ErrNotFound.
func (s *Store) GetArticle(_ context.Context, id string) (news.Article, error) {
	var row articleRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketArticles), []byte(id), &row)
	})
	if err != nil {
		return news.Article{}, err
	}
	return row.Article, nil
}

// ListArticles returns every article, most recently added first.
func (s *Store) ListArticles(_ context.Context) ([]news.Article, error) {
	var rows []articleRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArticles).ForEach(func(_, v []byte) error {
			var row articleRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("decode article: %w", err)
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq > rows[j].Seq })
	out := make([]news.Article, len(rows))
	for i, r := range rows {
		out[i] = r.Article
	}
	return out, nil
}

// SaveArticles inserts articles whose IDs are not stored yet.
func (s *Store) SaveArticles(_ context.Context, articles []news.Article) (int, error) {
	inserted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArticles)
		for _, a := range articles {
			if a.ID == "" || b.Get([]byte(a.ID)) != nil {
				continue
			}
			if err := putArticle(b, a); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// SaveArticle upserts a single article and marks it most recently added.
func (s *Store) SaveArticle(_ context.Context, a news.Article) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putArticle(tx.Bucket(bucketArticles), a)
	})
}

func putArticle(b *bolt.Bucket, a news.Article) error {
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	return putJSON(b, []byte(a.ID), articleRow{Article: record.Article(a), AddedAt: time.Now().UTC(), Seq: seq})
}

// DeleteArticle removes the article and reports whether it existed.
func (s *Store) DeleteArticle(_ context.Context, id string) (bool, error) {
	return s.deleteKey(bucketArticles, id)
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketArticles).Stats().KeyN
		return nil
	})
	return n, err
}

// GetExplanation returns a usable cached explanation.
func (s *Store) GetExplanation(_ context.Context, articleID string) (news.Explanation, error) {
	var e news.Explanation
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketExplanations), []byte(articleID), &e)
	})
	if err != nil {
		return news.Explanation{}, err
	}
	return record.Loaded(e)
}

// SaveExplanation replaces the cached explanation for its article.
func (s *Store) SaveExplanation(_ context.Context, e news.Explanation) error {
	e = record.Explanation(e)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketExplanations), []byte(e.ArticleID), e)
	})
}

// DeleteExplanation drops the cache entry and reports whether it existed.
func (s *Store) DeleteExplanation(_ context.Context, articleID string) (bool, error) {
	return s.deleteKey(bucketExplanations, articleID)
}

// ExplainedIDs returns the IDs that have a cached explanation.
func (s *Store) ExplainedIDs(_ context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExplanations).ForEach(func(k, _ []byte) error {
			out[string(k)] = struct{}{}
			return nil
		})
	})
	return out, err
}

// LoadDaily returns the latest daily content.
func (s *Store) LoadDaily(_ context.Context) (news.DailyContent, error) {
	var d news.DailyContent
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketDaily), keyLatest, &d)
	})
	return d, err
}

// SaveDaily replaces the latest daily content.
func (s *Store) SaveDaily(_ context.Context, content news.DailyContent) error {
	if content.UpdatedAt.IsZero() {
		content.UpdatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketDaily), keyLatest, content)
	})
}

func (s *Store) deleteKey(bucket []byte, id string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(id))
	})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", id, err)
	}
	return existed, nil
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return news.ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, raw)
}
