// Package metrics defines the Prometheus metric collectors used by the
// indexer and the searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SearchTotalMatches    prometheus.Histogram
	AllocationsConsidered prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	SchedulerTasksTotal   *prometheus.CounterVec
	IndexBuildDuration    *prometheus.HistogramVec
	IndexedTokens         *prometheus.GaugeVec
	IndexReloadsTotal     *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg
// registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchTotalMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_total_matches",
				Help:    "Total matches reported per query.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
			},
		),
		AllocationsConsidered: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_allocations_considered",
				Help:    "Number of allocations left after reduction, per query.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		SchedulerTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_tasks_total",
				Help: "Indexing tasks by execution mode and outcome (scheduled, succeeded, failed).",
			},
			[]string{"mode", "status"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Time to build one category bundle.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"index", "category"},
		),
		IndexedTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexed_tokens",
				Help: "Distinct tokens held by each loaded category bundle.",
			},
			[]string{"index", "category"},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_reloads_total",
				Help: "Index reloads triggered by index-complete events, by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchTotalMatches,
		m.AllocationsConsidered,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SchedulerTasksTotal,
		m.IndexBuildDuration,
		m.IndexedTokens,
		m.IndexReloadsTotal,
	)

	return m
}
