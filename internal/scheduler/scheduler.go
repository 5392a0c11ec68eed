// Package scheduler runs the periodic news refresh, trend refresh and daily
// memo generation on a cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Site is the aggregator surface the scheduler drives.
type Site interface {
	Trends(ctx context.Context, force bool) []news.Trend
	Bootstrap(ctx context.Context)
}

// Submitter queues background jobs without waiting for queue room.
type Submitter interface {
	TrySubmit(ctx context.Context, kind news.JobKind, manual *news.ManualInput) (string, error)
}

// DailyGenerator writes the daily memo.
type DailyGenerator interface {
	Generate(ctx context.Context) (*news.DailyContent, error)
}

// Config selects which entries are registered.
type Config struct {
	RefreshInterval time.Duration
	UpdatesDisabled bool
	DailyEnabled    bool
	DailySchedule   string
	Location        *time.Location
}

// Scheduler owns the cron and the bootstrap goroutine.
type Scheduler struct {
	cron   *cron.Cron
	site   Site
	jobs   Submitter
	daily  DailyGenerator
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context //nolint:containedctx // entries run long after Start returns
	started bool
	boot    sync.WaitGroup
}

// New registers the cron entries. An invalid daily schedule is an error.
func New(cfg Config, site Site, jobs Submitter, daily DailyGenerator, logger *zap.Logger) (*Scheduler, error) {
	logger = logging.OrNop(logger).Named("scheduler")
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{sugar: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		site:   site,
		jobs:   jobs,
		daily:  daily,
		logger: logger,
		ctx:    context.Background(),
	}

	if cfg.RefreshInterval > 0 {
		every := fmt.Sprintf("@every %s", cfg.RefreshInterval)
		if !cfg.UpdatesDisabled {
			if _, err := s.cron.AddFunc(every, s.refreshNews); err != nil {
				return nil, fmt.Errorf("schedule news refresh: %w", err)
			}
		}
		if _, err := s.cron.AddFunc(every, s.refreshTrends); err != nil {
			return nil, fmt.Errorf("schedule trend refresh: %w", err)
		}
	}
	if cfg.DailyEnabled && daily != nil {
		if _, err := s.cron.AddFunc(cfg.DailySchedule, s.generateDaily); err != nil {
			return nil, fmt.Errorf("schedule daily %q: %w", cfg.DailySchedule, err)
		}
	}
	return s, nil
}

// Entries reports how many cron entries are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins the cron and bootstraps the site in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx = ctx
	s.cron.Start()
	s.boot.Add(1)
	go func() {
		defer s.boot.Done()
		s.site.Bootstrap(ctx)
		s.logger.Info("bootstrap finished")
	}()
}

// Stop halts the cron and waits for running entries and the bootstrap.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.boot.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) runCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) refreshNews() {
	id, err := s.jobs.TrySubmit(s.runCtx(), news.JobKindRefresh, nil)
	if errors.Is(err, news.ErrQueueFull) {
		s.logger.Warn("scheduled refresh skipped, job queue full")
		return
	}
	if err != nil {
		s.logger.Warn("submit scheduled refresh", zap.Error(err))
		return
	}
	s.logger.Info("scheduled refresh queued", zap.String("job_id", id))
}

func (s *Scheduler) refreshTrends() {
	trends := s.site.Trends(s.runCtx(), true)
	s.logger.Debug("trends refreshed", zap.Int("count", len(trends)))
}

func (s *Scheduler) generateDaily() {
	if _, err := s.daily.Generate(s.runCtx()); err != nil {
		s.logger.Warn("daily generation", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
