// Package metrics exposes Prometheus collectors for the news site.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	feedItemsTotal             *prometheus.CounterVec
	aiCallsTotal               *prometheus.CounterVec
	aiCallDurationSeconds      *prometheus.HistogramVec
	articlesProcessedTotal     *prometheus.CounterVec
	bodyFetchesTotal           *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chiripo_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		feedItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_feed_items_total",
				Help: "Feed entries harvested, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		aiCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_ai_calls_total",
				Help: "Calls to the summarization provider, labeled by operation and status.",
			},
			[]string{"operation", "status"},
		)

		aiCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chiripo_ai_call_duration_seconds",
				Help:    "Latency of summarization calls, labeled by operation.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		)

		articlesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_articles_processed_total",
				Help: "Articles run through the explanation pipeline, labeled by status.",
			},
			[]string{"status"},
		)

		bodyFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_body_fetches_total",
				Help: "Article page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chiripo_fetch_rate_limit_delay_seconds",
				Help:    "Time article page fetches waited on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chiripo_jobs_total",
				Help: "Background jobs processed, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chiripo_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFeed records the outcome of harvesting one feed.
func ObserveFeed(source, status string, items int) {
	if feedItemsTotal == nil {
		return
	}
	if items <= 0 {
		feedItemsTotal.WithLabelValues(source, status).Add(0)
		return
	}
	feedItemsTotal.WithLabelValues(source, status).Add(float64(items))
}

// ObserveAICall records one summarization request.
func ObserveAICall(operation, status string, duration time.Duration) {
	if aiCallsTotal == nil {
		return
	}
	aiCallsTotal.WithLabelValues(operation, status).Inc()
	aiCallDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveArticle records a pipeline outcome.
func ObserveArticle(status string) {
	if articlesProcessedTotal == nil {
		return
	}
	articlesProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveBodyFetch records an article page fetch.
func ObserveBodyFetch(rawURL, status string) {
	if bodyFetchesTotal == nil {
		return
	}
	bodyFetchesTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveRateLimitDelay records how long a fetch to host was held back.
func ObserveRateLimitDelay(host string, d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveJob increments the job counter for the given kind and status.
func ObserveJob(kind, status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(kind, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
