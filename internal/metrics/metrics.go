// Package metrics defines the Prometheus collectors of the coordinator and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the coordinator.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	AvailabilityChecks   *prometheus.CounterVec
	StaleLocksPurged     prometheus.Counter
	DispatchesTotal      *prometheus.CounterVec
	CrawlPollsTotal      *prometheus.CounterVec
	IntegrityChecks      *prometheus.CounterVec
	CallbacksTotal       *prometheus.CounterVec
	TasksProcessed       *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry() so that several instances can coexist.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		AvailabilityChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feature_availability_checks_total",
				Help: "Availability checks by result (available, busy, missing).",
			},
			[]string{"result"},
		),
		StaleLocksPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feature_stale_locks_purged_total",
				Help: "Status locks removed because they outlived the staleness threshold.",
			},
		),
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feature_dispatches_total",
				Help: "Feature computations by variant and result (dispatched, busy, error).",
			},
			[]string{"variant", "result"},
		),
		CrawlPollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_polls_total",
				Help: "Crawl readiness polls by resulting state.",
			},
			[]string{"state"},
		),
		IntegrityChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integrity_checks_total",
				Help: "Integrity checks by stage (started, completed, failed).",
			},
			[]string{"stage"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_callbacks_total",
				Help: "Callbacks received from remote workers by kind and status.",
			},
			[]string{"kind", "status"},
		),
		TasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_processed_total",
				Help: "Background tasks processed by type and status.",
			},
			[]string{"type", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "task_duration_seconds",
				Help:    "Background task processing time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AvailabilityChecks,
		m.StaleLocksPurged,
		m.DispatchesTotal,
		m.CrawlPollsTotal,
		m.IntegrityChecks,
		m.CallbacksTotal,
		m.TasksProcessed,
		m.TaskDuration,
	)

	return m
}

// NewDefault registers the collectors on a private registry that also carries
// the Go runtime and process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
