// Package metrics exposes Prometheus collectors for the aggregation service.
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
	candidatesTotal            *prometheus.CounterVec
	mergesTotal                *prometheus.CounterVec
	sourceFailuresTotal        *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	browserSessionsActive      prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_candidates_total",
				Help: "Total raw candidate records extracted, labeled by source.",
			},
			[]string{"source"},
		)

		mergesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_merges_total",
				Help: "Total candidates merged into an existing canonical record, labeled by source.",
			},
			[]string{"source"},
		)

		sourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_source_failures_total",
				Help: "Total per-source failures, labeled by source and error kind.",
			},
			[]string{"source", "kind"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_runs_total",
				Help: "Total batch runs, labeled by final status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregator_run_duration_seconds",
				Help:    "Histogram of batch run durations, labeled by final status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		)

		browserSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregator_browser_sessions_active",
				Help: "Number of live headless browser sessions.",
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

// ObserveCandidate counts one extracted candidate.
func ObserveCandidate(source string) {
	if candidatesTotal == nil {
		return
	}
	candidatesTotal.WithLabelValues(source).Inc()
}

// ObserveMerge counts one candidate merged into an existing record.
func ObserveMerge(source string) {
	if mergesTotal == nil {
		return
	}
	mergesTotal.WithLabelValues(source).Inc()
}

// ObserveSourceFailure counts one per-source failure by error kind.
func ObserveSourceFailure(source, kind string) {
	if sourceFailuresTotal == nil {
		return
	}
	sourceFailuresTotal.WithLabelValues(source, kind).Inc()
}

// ObserveRun records one finished batch run.
func ObserveRun(status string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncBrowserSessions increments the live browser session gauge.
func IncBrowserSessions() {
	if browserSessionsActive == nil {
		return
	}
	browserSessionsActive.Inc()
}

// DecBrowserSessions decrements the live browser session gauge.
func DecBrowserSessions() {
	if browserSessionsActive == nil {
		return
	}
	browserSessionsActive.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
