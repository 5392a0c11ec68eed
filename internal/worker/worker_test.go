package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/pipeline"
	queuemem "github.com/JakeFAU/chiripo-news/internal/queue/memory"
	"github.com/JakeFAU/chiripo-news/internal/storage/memory"
)

type fakePipeline struct {
	mu       sync.Mutex
	added    int
	limits   []int
	forceRes news.Result
	manual   []news.ManualInput
	block    chan struct{}
}

func (f *fakePipeline) ProcessNew(ctx context.Context, _ []news.Article, limit int, _ []string) int {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return min(f.added, limit)
}

func (f *fakePipeline) ForceAddOne(context.Context) news.Result { return f.forceRes }

func (f *fakePipeline) CreateManual(_ context.Context, in news.ManualInput) (news.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, in)
	id := "manual-1"
	return news.Result{Status: news.ResultOK, ArticleID: &id}, nil
}

type fakeSite struct {
	mu      sync.Mutex
	shown   []news.Article
	forced  int
	reloads int
	err     error
}

func (s *fakeSite) News(_ context.Context, force bool) ([]news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		s.forced++
	}
	return s.shown, s.err
}

func (s *fakeSite) Reload(context.Context) ([]news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	return s.shown, nil
}

type fakeFeed struct{ err error }

func (f fakeFeed) Fetch(context.Context) ([]news.Article, error) {
	return []news.Article{{ID: "a"}, {ID: "b"}}, f.err
}

type harness struct {
	queue *queuemem.Queue
	jobs  *memory.JobStore
	pipe  *fakePipeline
	site  *fakeSite
	store *memory.Store
}

func start(t *testing.T, cfg Config, pipe *fakePipeline, site *fakeSite) *harness {
	t.Helper()
	h := &harness{
		queue: queuemem.NewQueue(4),
		jobs:  memory.NewJobStore(nil),
		pipe:  pipe,
		site:  site,
		store: memory.NewStore(),
	}
	w := New(h.queue, h.jobs, pipe, site, fakeFeed{}, h.store, cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return h
}

func (h *harness) run(t *testing.T, id string, kind news.JobKind, manual *news.ManualInput) news.Job {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.jobs.CreateJob(ctx, news.Job{ID: id, Kind: kind, Status: news.JobStatusQueued}))
	require.NoError(t, h.queue.Enqueue(ctx, news.QueueItem{JobID: id, Kind: kind, Manual: manual}))
	var job news.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.jobs.GetJob(ctx, id)
		return err == nil && job.Status.Terminal()
	}, time.Second, 5*time.Millisecond)
	return job
}

func TestWorkerRefresh(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{}, &fakeSite{})
	job := h.run(t, "job-refresh", news.JobKindRefresh, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, news.ResultOK, job.Result.Status)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)
	require.Equal(t, 1, h.site.forced)
}

func TestWorkerRefreshFailure(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{}, &fakeSite{err: errors.New("store down")})
	job := h.run(t, "job-refresh-fail", news.JobKindRefresh, nil)

	require.Equal(t, news.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "store down")
}

func TestWorkerSeedOne(t *testing.T) {
	t.Parallel()

	site := &fakeSite{shown: []news.Article{{ID: "newest"}, {ID: "older"}}}
	h := start(t, Config{}, &fakePipeline{added: 3}, site)
	job := h.run(t, "job-seed", news.JobKindSeedOne, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, news.ResultOK, job.Result.Status)
	require.Equal(t, "newest", *job.Result.ArticleID)
	require.Equal(t, []int{1}, h.pipe.limits)
}

func TestWorkerSeedOneNothingNew(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{}, &fakeSite{})
	job := h.run(t, "job-seed-none", news.JobKindSeedOne, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, news.ResultNone, job.Result.Status)
	require.Nil(t, job.Result.ArticleID)
	require.Equal(t, pipeline.MsgNothingToAdd, job.Result.Message)
}

func TestWorkerSeedBatch(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{added: 2}, &fakeSite{})
	ctx := context.Background()
	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, h.store.SaveExplanation(ctx, news.Explanation{ArticleID: id}))
	}
	job := h.run(t, "job-batch", news.JobKindSeedBatch, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, 2, job.Result.Added)
	require.Equal(t, 3, job.Result.Total)
	require.Equal(t, []int{5}, h.pipe.limits)
	require.Equal(t, 1, h.site.reloads)
}

func TestWorkerForceAddKeepsPipelineResult(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{forceRes: news.Result{Status: news.ResultError, Message: pipeline.MsgGenerateFailed}}
	h := start(t, Config{}, pipe, &fakeSite{})
	job := h.run(t, "job-force", news.JobKindForceAdd, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, news.ResultError, job.Result.Status)
	require.Equal(t, pipeline.MsgGenerateFailed, job.Result.Message)
}

func TestWorkerManual(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{}, &fakeSite{})
	in := &news.ManualInput{Title: "t", Summary: "s"}
	job := h.run(t, "job-manual", news.JobKindManual, in)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, "manual-1", *job.Result.ArticleID)
	require.Equal(t, []news.ManualInput{*in}, h.pipe.manual)

	job = h.run(t, "job-manual-empty", news.JobKindManual, nil)
	require.Equal(t, news.JobStatusFailed, job.Status)
}

func TestWorkerUnknownKind(t *testing.T) {
	t.Parallel()

	h := start(t, Config{}, &fakePipeline{}, &fakeSite{})
	job := h.run(t, "job-odd", news.JobKind("reindex"), nil)

	require.Equal(t, news.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "reindex")
}

func TestWorkerJobTimeoutStillRecordsStatus(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{added: 1, block: make(chan struct{})}
	h := start(t, Config{JobTimeout: 20 * time.Millisecond}, pipe, &fakeSite{})
	job := h.run(t, "job-slow", news.JobKindSeedOne, nil)

	require.Equal(t, news.JobStatusSucceeded, job.Status)
	require.Equal(t, news.ResultNone, job.Result.Status)
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue(1)
	w := New(queue, memory.NewJobStore(nil), &fakePipeline{}, &fakeSite{}, fakeFeed{}, memory.NewStore(), Config{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	queue.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker kept running after the queue closed")
	}
}
