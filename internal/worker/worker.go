// Package worker executes background ingestion jobs taken from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/pipeline"
)

// seedBatchSize is how many new articles an admin seed run explains.
const seedBatchSize = 5

// Pipeline is the ingestion surface jobs drive.
type Pipeline interface {
	ProcessNew(ctx context.Context, items []news.Article, limit int, keywords []string) int
	ForceAddOne(ctx context.Context) news.Result
	CreateManual(ctx context.Context, in news.ManualInput) (news.Result, error)
}

// Site refreshes what the site shows once a job changes the store.
type Site interface {
	News(ctx context.Context, force bool) ([]news.Article, error)
	Reload(ctx context.Context) ([]news.Article, error)
}

// FeedSource harvests feed items.
type FeedSource interface {
	Fetch(ctx context.Context) ([]news.Article, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single job; zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs them against the pipeline.
type Worker struct {
	queue    news.Queue
	jobStore news.JobStore
	pipeline Pipeline
	site     Site
	feed     FeedSource
	store    news.ExplanationStore
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue news.Queue,
	jobStore news.JobStore,
	pipe Pipeline,
	site Site,
	feed FeedSource,
	store news.ExplanationStore,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:    queue,
		jobStore: jobStore,
		pipeline: pipe,
		site:     site,
		feed:     feed,
		store:    store,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, news.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Kind)))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item news.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if err := w.jobStore.UpdateJob(ctx, item.JobID, news.JobStatusRunning, "", nil); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	result, err := w.execute(jobCtx, item)
	status, errText := news.JobStatusSucceeded, ""
	if err != nil {
		status, errText = news.JobStatusFailed, err.Error()
		w.logger.Warn("job failed",
			zap.String("job_id", item.JobID),
			zap.String("kind", string(item.Kind)),
			zap.Error(err))
	}
	metrics.ObserveJob(string(item.Kind), string(status))

	// the job context may have expired; the final status must still land
	if err := w.jobStore.UpdateJob(context.WithoutCancel(ctx), item.JobID, status, errText, result); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
}

func (w *Worker) execute(ctx context.Context, item news.QueueItem) (*news.Result, error) {
	switch item.Kind {
	case news.JobKindRefresh:
		if _, err := w.site.News(ctx, true); err != nil {
			return nil, fmt.Errorf("refresh news: %w", err)
		}
		return &news.Result{Status: news.ResultOK}, nil
	case news.JobKindSeedOne:
		return w.seedOne(ctx)
	case news.JobKindSeedBatch:
		return w.seedBatch(ctx)
	case news.JobKindForceAdd:
		res := w.pipeline.ForceAddOne(ctx)
		w.reload(ctx)
		return &res, nil
	case news.JobKindManual:
		if item.Manual == nil {
			return nil, errors.New("manual job without input")
		}
		res, err := w.pipeline.CreateManual(ctx, *item.Manual)
		if err != nil {
			return nil, fmt.Errorf("create manual article: %w", err)
		}
		w.reload(ctx)
		return &res, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", item.Kind)
	}
}

func (w *Worker) seedOne(ctx context.Context) (*news.Result, error) {
	items, err := w.feed.Fetch(ctx)
	if err != nil {
		w.logger.Warn("fetch feeds", zap.Error(err))
	}
	if w.pipeline.ProcessNew(ctx, items, 1, nil) <= 0 {
		return &news.Result{Status: news.ResultNone, Message: pipeline.MsgNothingToAdd}, nil
	}
	shown, err := w.site.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload news: %w", err)
	}
	res := &news.Result{Status: news.ResultOK}
	if len(shown) > 0 {
		id := shown[0].ID
		res.ArticleID = &id
	}
	return res, nil
}

func (w *Worker) seedBatch(ctx context.Context) (*news.Result, error) {
	items, err := w.feed.Fetch(ctx)
	if err != nil {
		w.logger.Warn("fetch feeds", zap.Error(err))
	}
	added := w.pipeline.ProcessNew(ctx, items, seedBatchSize, nil)
	w.reload(ctx)
	ids, err := w.store.ExplainedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count explained: %w", err)
	}
	return &news.Result{Status: news.ResultOK, Added: added, Total: len(ids)}, nil
}

func (w *Worker) reload(ctx context.Context) {
	if _, err := w.site.Reload(ctx); err != nil {
		w.logger.Warn("reload news", zap.Error(err))
	}
}
