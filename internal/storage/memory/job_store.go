package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// JobStore tracks background job state in memory.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]news.Job
	clock news.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewJobStore constructs a JobStore. A nil clock uses the wall clock.
func NewJobStore(clock news.Clock) *JobStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &JobStore{
		jobs:  make(map[string]news.Job),
		clock: clock,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job news.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob moves a job to status and records its outcome. Start and finish
// timestamps are set on the first transition into running and terminal states.
func (s *JobStore) UpdateJob(
	_ context.Context,
	jobID string,
	status news.JobStatus,
	errText string,
	result *news.Result,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, news.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}
	job.Status = status
	job.ErrorText = errText
	if result != nil {
		r := *result
		job.Result = &r
	}
	now := s.clock.Now()
	if status == news.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		if job.Started == nil {
			job.Started = pointerTime(now)
		}
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (news.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return news.Job{}, news.ErrNotFound
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
