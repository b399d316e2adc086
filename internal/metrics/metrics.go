// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlJobsTotal             *prometheus.CounterVec
	crawlFilmsTotal            *prometheus.CounterVec
	crawlYearFailuresTotal     *prometheus.CounterVec
	crawlFetchAttemptsTotal    *prometheus.CounterVec
	crawlActiveWorkers         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_jobs_total",
				Help: "Total number of crawl jobs reaching a terminal state, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		crawlFilmsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_films_total",
				Help: "Total number of films collected, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		crawlYearFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_year_failures_total",
				Help: "Total number of per-year collection failures, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		crawlFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_fetch_attempts_total",
				Help: "Total number of single fetch attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_workers",
				Help: "Number of workers currently executing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal-job counter.
func ObserveJob(mode, status string) {
	Init()
	crawlJobsTotal.WithLabelValues(mode, status).Inc()
}

// AddFilmsCollected adds to the collected-films counter.
func AddFilmsCollected(strategy string, n int) {
	if n <= 0 {
		return
	}
	Init()
	crawlFilmsTotal.WithLabelValues(strategy).Add(float64(n))
}

// ObserveYearFailure increments the per-year failure counter.
func ObserveYearFailure(strategy string) {
	Init()
	crawlYearFailuresTotal.WithLabelValues(strategy).Inc()
}

// ObserveFetchAttempt records one fetch attempt and its outcome.
func ObserveFetchAttempt(strategy, outcome string) {
	Init()
	crawlFetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
