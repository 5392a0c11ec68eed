// Package dispatcher manages worker fan-out over the job queue and tracks
// submitted jobs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/worker"
)

// ErrWaitTimeout is returned by Wait when a job is still running at the deadline.
var ErrWaitTimeout = errors.New("job wait timed out")

const pollInterval = 100 * time.Millisecond

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue    news.Queue
	jobStore news.JobStore
	ids      news.IDGenerator
	clock    news.Clock
	workers  []*worker.Worker
}

// New creates a Dispatcher.
func New(queue news.Queue, jobStore news.JobStore, ids news.IDGenerator, clock news.Clock, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		jobStore: jobStore,
		ids:      ids,
		clock:    clock,
		workers:  workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item news.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit records a queued job and enqueues it, returning the job ID. It
// blocks while the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, kind news.JobKind, manual *news.ManualInput) (string, error) {
	return d.submit(ctx, kind, manual, d.Enqueue)
}

// TrySubmit is Submit without waiting for queue room. A full queue fails the
// job with an error wrapping news.ErrQueueFull.
func (d *Dispatcher) TrySubmit(ctx context.Context, kind news.JobKind, manual *news.ManualInput) (string, error) {
	return d.submit(ctx, kind, manual, func(_ context.Context, item news.QueueItem) error {
		if err := d.queue.TryEnqueue(item); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
		return nil
	})
}

func (d *Dispatcher) submit(
	ctx context.Context,
	kind news.JobKind,
	manual *news.ManualInput,
	enqueue func(context.Context, news.QueueItem) error,
) (string, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("new job id: %w", err)
	}
	job := news.Job{
		ID:        id,
		Kind:      kind,
		Status:    news.JobStatusQueued,
		Submitted: d.clock.Now(),
		Manual:    manual,
	}
	if err := d.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := enqueue(ctx, news.QueueItem{JobID: id, Kind: kind, Manual: manual}); err != nil {
		if uerr := d.jobStore.UpdateJob(ctx, id, news.JobStatusFailed, err.Error(), nil); uerr != nil {
			return "", errors.Join(err, uerr)
		}
		return "", err
	}
	return id, nil
}

// Wait polls the job until it reaches a terminal state or timeout elapses.
// On timeout the last seen job is returned along with ErrWaitTimeout.
func (d *Dispatcher) Wait(ctx context.Context, jobID string, timeout time.Duration) (news.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		job, err := d.jobStore.GetJob(ctx, jobID)
		if err != nil {
			return news.Job{}, fmt.Errorf("get job: %w", err)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return job, ErrWaitTimeout
			}
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Job returns the tracked job.
func (d *Dispatcher) Job(ctx context.Context, jobID string) (news.Job, error) {
	return d.jobStore.GetJob(ctx, jobID)
}
