package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/aggregator"
	"github.com/JakeFAU/chiripo-news/internal/history"
	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Site serves the explained articles and trends.
type Site interface {
	News(ctx context.Context, force bool) ([]news.Article, error)
	Reload(ctx context.Context) ([]news.Article, error)
	ByCategory(ctx context.Context, page int) ([]news.CategoryGroup, news.Pagination, error)
	Trends(ctx context.Context, force bool) []news.Trend
	Article(ctx context.Context, id string) (news.Article, error)
	Status(ctx context.Context) (aggregator.Status, error)
	UpdatesDisabled() bool
}

// Explainer produces and caches explanations.
type Explainer interface {
	GenerateAll(ctx context.Context, id, title, content string) (news.Explanation, error)
	Extras(ctx context.Context, id string) (*news.QuickUnderstand, *news.VoteQuestion, error)
	// Saved returns the stored explanation without generating one.
	Saved(ctx context.Context, id string) (news.Explanation, error)
}

// AI answers the on-demand, uncached requests.
type AI interface {
	Explain(ctx context.Context, title, content string) string
	InlineBlocks(ctx context.Context, title, content string) []news.Block
	Navigator(ctx context.Context, title, content string) []news.Block
	ExplainParagraph(ctx context.Context, paragraph, title string) string
}

// Jobs submits background work and tracks it.
type Jobs interface {
	Submit(ctx context.Context, kind news.JobKind, manual *news.ManualInput) (string, error)
	// TrySubmit fails with news.ErrQueueFull instead of waiting for room.
	TrySubmit(ctx context.Context, kind news.JobKind, manual *news.ManualInput) (string, error)
	Wait(ctx context.Context, jobID string, timeout time.Duration) (news.Job, error)
	Job(ctx context.Context, jobID string) (news.Job, error)
}

// DailySource returns today's memo, if any.
type DailySource interface {
	Get(ctx context.Context) (*news.DailyContent, error)
}

// HistorySource lists recent save attempts.
type HistorySource interface {
	Entries() []history.Entry
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Site      Site
	Explainer Explainer
	AI        AI
	Jobs      Jobs
	Daily     DailySource
	History   HistorySource
	Store     news.Store
	// Ready reports readiness for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Options tune presentation, admin access and timeouts.
type Options struct {
	CDNBaseURL     string
	ConfirmLimit   int
	AdminSecret    string
	CookieName     string
	RequestTimeout time.Duration
	JobWait        time.Duration
}

// Server wires HTTP handlers to the site services.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	codec  *securecookie.SecureCookie
	logger *zap.Logger
}

const (
	defaultRequestTimeout = 200 * time.Second
	defaultJobWait        = 180 * time.Second
	defaultConfirmLimit   = 20
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("api")
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.JobWait <= 0 {
		opts.JobWait = defaultJobWait
	}
	if opts.ConfirmLimit <= 0 {
		opts.ConfirmLimit = defaultConfirmLimit
	}
	if opts.CookieName == "" {
		opts.CookieName = "newsite_admin"
	}
	s := &Server{
		deps:   deps,
		opts:   opts,
		codec:  newSessionCodec(opts.AdminSecret),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))

		r.Get("/", s.indexPage)
		r.Get("/confirm", s.confirmPage)
		r.Get("/article/{id}", s.articlePage)
		r.Get("/debug", s.debugPage)

		r.Get("/admin/login", s.adminLoginPage)
		r.Post("/admin/login", s.adminLoginSubmit)
		r.Get("/admin/logout", s.adminLogout)
		r.Get("/admin", s.adminPage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", s.status)
			r.Get("/trends", s.trends)
			r.Get("/daily", s.daily)
			r.Get("/news/refresh", s.refreshNews)
			r.Get("/jobs/{job_id}", s.getJob)

			r.Route("/article", func(r chi.Router) {
				r.Get("/seed-one", s.seedOne)
				r.Get("/force-add-one", s.forceAddOne)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/explain", s.explain)
					r.Get("/explain-inline", s.explainInline)
					r.Get("/explanations", s.explanations)
					r.Get("/opinion/{persona_id}", s.opinion)
					r.Get("/navigator", s.navigator)
					r.Get("/extras", s.extras)
					r.Post("/paragraph", s.paragraph)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/article/manual", s.adminManual)
				r.Post("/article/{id}/clear-cache", s.adminClearCache)
				r.Post("/article/{id}/delete", s.adminDelete)
				r.Get("/seed-articles", s.adminSeed)
				r.Get("/history", s.adminHistory)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("error", rec),
						zap.Stack("stack"))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
