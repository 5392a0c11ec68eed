// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/aggregator"
	"github.com/JakeFAU/chiripo-news/internal/ai"
	"github.com/JakeFAU/chiripo-news/internal/api"
	"github.com/JakeFAU/chiripo-news/internal/clock/system"
	"github.com/JakeFAU/chiripo-news/internal/config"
	"github.com/JakeFAU/chiripo-news/internal/daily"
	"github.com/JakeFAU/chiripo-news/internal/dispatcher"
	"github.com/JakeFAU/chiripo-news/internal/feed"
	"github.com/JakeFAU/chiripo-news/internal/fetcher"
	collyfetcher "github.com/JakeFAU/chiripo-news/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/chiripo-news/internal/fetcher/headless"
	"github.com/JakeFAU/chiripo-news/internal/history"
	"github.com/JakeFAU/chiripo-news/internal/id/uuid"
	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/pipeline"
	"github.com/JakeFAU/chiripo-news/internal/policy/ratelimit"
	"github.com/JakeFAU/chiripo-news/internal/publisher"
	queueMemory "github.com/JakeFAU/chiripo-news/internal/queue/memory"
	"github.com/JakeFAU/chiripo-news/internal/scheduler"
	"github.com/JakeFAU/chiripo-news/internal/scoring"
	"github.com/JakeFAU/chiripo-news/internal/storage"
	memoryStorage "github.com/JakeFAU/chiripo-news/internal/storage/memory"
	"github.com/JakeFAU/chiripo-news/internal/trends"
	"github.com/JakeFAU/chiripo-news/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	store     news.Store
	ai        *ai.Service
	site      *aggregator.Aggregator
	pipeline  *pipeline.Pipeline
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	queue     *queueMemory.Queue
	headless  *headlessfetcher.Fetcher
	closers   []namedCloser

	// dispatching tracks the dispatcher goroutine started by Run.
	dispatching sync.WaitGroup
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	// Only non-sensitive fields are logged.
	type SanitizedConfig struct {
		ServerPort      int    `json:"server_port"`
		StorageBackend  string `json:"storage_backend"`
		AIProvider      string `json:"ai_provider"`
		UpdatesDisabled bool   `json:"updates_disabled"`
		AdminEnabled    bool   `json:"admin_enabled"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:      cfg.Server.Port,
		StorageBackend:  cfg.Storage.Backend,
		AIProvider:      cfg.AI.Provider,
		UpdatesDisabled: cfg.Ingest.UpdatesDisabled,
		AdminEnabled:    cfg.Admin.Enabled(),
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Refresh runs one forced ingest and returns how many articles are displayable.
func (a *App) Refresh(ctx context.Context) (int, error) {
	items, err := a.site.News(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("refresh news: %w", err)
	}
	return len(items), nil
}

// Seed stores feed articles until target are on file. Zero uses ingest.seed_target.
func (a *App) Seed(ctx context.Context, target int) (int, error) {
	if target <= 0 {
		target = a.cfg.Ingest.SeedTarget
	}
	added, err := a.pipeline.Seed(ctx, target)
	if err != nil {
		return added, fmt.Errorf("seed articles: %w", err)
	}
	if _, err := a.site.Reload(ctx); err != nil {
		a.logger.Warn("reload after seed", zap.Error(err))
	}
	return added, nil
}

// Status reports storage counts.
func (a *App) Status(ctx context.Context) (aggregator.Status, error) {
	return a.site.Status(ctx)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.startDispatcher(ctx)
	a.scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

func (a *App) startDispatcher(ctx context.Context) {
	a.dispatching.Add(1)
	go func() {
		defer a.dispatching.Done()
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
		a.logger.Info("dispatcher stopped")
	}()
}

// awaitDispatcher blocks until the workers have returned or ctx ends.
func (a *App) awaitDispatcher(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.dispatching.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher still running: %w", ctx.Err())
	}
}

// Close gracefully shuts down the application. Running workers are awaited
// before the queue and stores are closed.
func (a *App) Close(ctx context.Context) error {
	waitErr := a.awaitDispatcher(ctx)
	if waitErr != nil {
		a.logger.Warn("closing with workers still running", zap.Error(waitErr))
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return waitErr
}

func (a *App) closeInfrastructure() {
	// Reverse order so clients close after their users.
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.closer.Close(); err != nil {
			a.logger.Warn(c.name+" close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) closeObservability(context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func (a *App) track(name string, v any) {
	if c, ok := v.(io.Closer); ok && c != nil {
		a.closers = append(a.closers, namedCloser{name: name, closer: c})
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := NewApp(cfg, logger)
	app.clock = system.New(nil)
	app.logger.Info("building application dependencies")

	if err := app.setupStorage(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	blobs, err := app.setupBlob(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	pub, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupAI(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	feeds, err := app.setupFeed()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	trendSvc := app.setupTrends()

	log := history.New(app.clock)
	app.pipeline = pipeline.New(pipeline.Deps{
		Store:     app.store,
		AI:        app.ai,
		Bodies:    app.setupBodyFetcher(),
		Feed:      feeds,
		Trends:    trendSvc,
		Ranker:    app.setupRanker(),
		Blobs:     blobs,
		Publisher: pub,
		History:   log,
		Clock:     app.clock,
		Logger:    logger,
	}, pipeline.Config{
		BlobPrefix:        cfg.Blob.Prefix,
		Ranking:           cfg.Ingest.Ranking,
		DailyArticleLimit: cfg.Ingest.DailyArticleLimit,
	})

	app.site = aggregator.New(app.store, feeds, trendSvc, app.pipeline, app.clock, aggregator.Config{
		ItemsPerPage:     cfg.Site.ItemsPerPage,
		DisplayLimit:     cfg.Site.DisplayLimit,
		MaxPerRun:        cfg.Ingest.MaxPerRun,
		StartupThreshold: cfg.Ingest.StartupThreshold,
		TrendTTL:         time.Duration(cfg.Trends.CacheMinutes) * time.Minute,
		UpdatesDisabled:  cfg.Ingest.UpdatesDisabled,
		AIConfigured:     app.ai.Configured(),
	}, logger)

	memo := daily.New(app.store, app.ai, app.site, app.clock, cfg.Ingest.UpdatesDisabled, logger)

	app.dispatch = app.setupDispatcher(feeds)

	app.scheduler, err = scheduler.New(scheduler.Config{
		RefreshInterval: cfg.Ingest.RefreshInterval(),
		UpdatesDisabled: cfg.Ingest.UpdatesDisabled,
		DailyEnabled:    cfg.Daily.Enabled,
		DailySchedule:   cfg.Daily.Schedule,
		Location:        app.clock.Location(),
	}, app.site, app.dispatch, memo, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	app.apiServer = api.NewServer(api.Deps{
		Site:      app.site,
		Explainer: app.pipeline,
		AI:        app.ai,
		Jobs:      app.dispatch,
		Daily:     memo,
		History:   log,
		Store:     app.store,
		Ready: func(ctx context.Context) error {
			_, err := app.store.CountArticles(ctx)
			return err
		},
	}, api.Options{
		CDNBaseURL:     cfg.Site.CDNBaseURL,
		ConfirmLimit:   cfg.Site.ConfirmLimit,
		AdminSecret:    cfg.Admin.Secret,
		CookieName:     cfg.Admin.CookieName,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		JobWait:        cfg.Ingest.JobTimeout(),
	}, logger)

	return app, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	sel, err := storage.Resolve(a.cfg.Storage, a.logger)
	if err != nil {
		return fmt.Errorf("storage resolve failed: %w", err)
	}
	a.store, err = storage.Open(ctx, sel, a.cfg.Storage, a.logger)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	a.track("store", a.store)
	a.logger.Info("storage backend ready", zap.String("backend", a.store.Name()))
	return nil
}

func (a *App) setupBlob(ctx context.Context) (news.BlobStore, error) {
	blobs, err := storage.OpenBlob(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob store init failed: %w", err)
	}
	if blobs == nil {
		a.logger.Info("article body archive disabled")
		return nil, nil
	}
	a.track("blob store", blobs)
	a.logger.Info("article body archive enabled", zap.String("backend", a.cfg.Blob.Backend))
	return blobs, nil
}

func (a *App) setupPublisher(ctx context.Context) (news.Publisher, error) {
	pub, err := publisher.New(ctx, a.cfg.Publisher)
	if err != nil {
		return nil, fmt.Errorf("publisher init failed: %w", err)
	}
	a.track("publisher", pub)
	a.logger.Info("article events enabled",
		zap.String("backend", a.cfg.Publisher.Backend),
		zap.String("topic", a.cfg.Publisher.Topic),
	)
	return pub, nil
}

func (a *App) setupAI(ctx context.Context) error {
	completer, err := ai.NewCompleter(ctx, a.cfg.AI, a.logger)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		a.logger.Warn("AI key not set, explanations disabled", zap.String("provider", a.cfg.AI.Provider))
	case err != nil:
		return fmt.Errorf("ai client init failed: %w", err)
	default:
		a.logger.Info("AI provider ready", zap.String("provider", a.cfg.AI.Provider), zap.String("model", a.cfg.AI.Model))
	}
	a.ai = ai.NewService(completer, a.logger)
	a.track("ai", a.ai)
	return nil
}

func (a *App) setupFeed() (*feed.Fetcher, error) {
	catalog, err := feed.LoadCatalog(a.cfg.Ingest.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("feed catalog load failed: %w", err)
	}
	a.logger.Info("feed catalog loaded", zap.Int("feeds", len(catalog)))
	return feed.New(catalog, feed.Options{
		FullTextBaseURL: a.cfg.Ingest.FullTextRSSBaseURL,
		UserAgent:       a.cfg.Ingest.UserAgent,
		Clock:           a.clock,
		Logger:          a.logger,
	}), nil
}

func (a *App) setupTrends() *trends.Service {
	client := resty.New().SetTimeout(10 * time.Second)
	sources := []trends.Source{trends.NewGoogleRSS(client, a.cfg.Trends.GoogleRSSURL)}
	if rapid := trends.NewRapidAPI(client, a.cfg.Trends.RapidAPIKey, a.cfg.Trends.RapidAPIHost); rapid != nil {
		sources = append(sources, rapid)
	}
	if a.cfg.Trends.NitterEnabled {
		sources = append(sources, trends.NewNitter(client, a.cfg.Trends.NitterInstances))
	}
	a.logger.Info("trend sources configured", zap.Int("sources", len(sources)))
	return trends.NewService(a.logger, sources...)
}

func (a *App) setupRanker() pipeline.Ranker {
	if a.cfg.Ingest.Ranking != "score" {
		return nil
	}
	var suggester scoring.Suggester
	if a.cfg.Scoring.AutocompleteEnabled {
		suggester = scoring.NewAutocomplete(resty.New().SetTimeout(5*time.Second), a.cfg.Scoring.AutocompleteURL)
	}
	a.logger.Info("search potential ranking enabled", zap.Bool("autocomplete", suggester != nil))
	return scoring.NewScorer(suggester, a.logger)
}

func (a *App) setupBodyFetcher() *fetcher.BodyFetcher {
	timeout := time.Duration(a.cfg.Fetch.TimeoutSeconds) * time.Second
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   timeout,
	})
	a.logger.Info("using colly body fetcher", zap.Duration("timeout", timeout))

	var headless fetcher.PageFetcher
	if a.cfg.Fetch.Headless.Enabled {
		f, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       a.cfg.Fetch.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Fetch.Headless.NavTimeoutSec) * time.Second,
			ArticleWait:       time.Duration(a.cfg.Fetch.Headless.ArticleWaitSec) * time.Second,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			a.headless = f
			headless = f
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Fetch.Headless.MaxParallel))
		}
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Fetch.PerHostRPS,
		DefaultBurst: a.cfg.Fetch.PerHostBurst,
	})
	a.logger.Info("per-host fetch limit",
		zap.Float64("rps", a.cfg.Fetch.PerHostRPS),
		zap.Int("burst", a.cfg.Fetch.PerHostBurst),
	)
	return fetcher.NewBodyFetcher(static, headless, a.logger).WithLimiter(limiter)
}

func (a *App) setupDispatcher(feeds worker.FeedSource) *dispatcher.Dispatcher {
	a.queue = queueMemory.NewQueue(a.cfg.Jobs.QueueDepth)
	jobStore := memoryStorage.NewJobStore(a.clock)
	workerCfg := worker.Config{JobTimeout: a.cfg.Ingest.JobTimeout()}
	a.logger.Info("worker config",
		zap.Int("workers", a.cfg.Jobs.Workers),
		zap.Int("queue_depth", a.cfg.Jobs.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)

	workers := make([]*worker.Worker, 0, a.cfg.Jobs.Workers)
	for i := 0; i < a.cfg.Jobs.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			jobStore,
			a.pipeline,
			a.site,
			feeds,
			a.store,
			workerCfg,
			a.logger.With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(a.queue, jobStore, uuid.New(), a.clock, workers)
}
