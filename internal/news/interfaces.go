package news

import (
	"context"
	"io"
	"time"
)

// ArticleStore persists harvested articles.
type ArticleStore interface {
	GetArticle(ctx context.Context, id string) (Article, error)
	// ListArticles returns every stored article, most recently added first.
	ListArticles(ctx context.Context) ([]Article, error)
	// SaveArticles inserts articles whose IDs are not stored yet and returns how many were inserted.
	SaveArticles(ctx context.Context, articles []Article) (int, error)
	SaveArticle(ctx context.Context, article Article) error
	DeleteArticle(ctx context.Context, id string) (bool, error)
	CountArticles(ctx context.Context) (int, error)
}

// ExplanationStore caches generated explanations keyed by article ID.
type ExplanationStore interface {
	GetExplanation(ctx context.Context, articleID string) (Explanation, error)
	SaveExplanation(ctx context.Context, exp Explanation) error
	DeleteExplanation(ctx context.Context, articleID string) (bool, error)
	ExplainedIDs(ctx context.Context) (map[string]struct{}, error)
}

// DailyStore keeps the latest daily AI content.
type DailyStore interface {
	LoadDaily(ctx context.Context) (DailyContent, error)
	SaveDaily(ctx context.Context, content DailyContent) error
}

// Store is the full persistence surface selected at startup.
type Store interface {
	ArticleStore
	ExplanationStore
	DailyStore
	Name() string
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes article events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// JobStore tracks background job state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, jobID string, status JobStatus, errText string, result *Result) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for background jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	// TryEnqueue never blocks; it returns ErrQueueFull when there is no room.
	TryEnqueue(item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
