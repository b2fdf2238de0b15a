// Package metrics provides centralized Prometheus metrics for the scrapers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scrape metrics track batch runs and per-target outcomes
var (
	// ScrapeTasksTotal counts finished tasks by job and outcome
	// (updated, empty, failed, write_failed)
	ScrapeTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_tasks_total",
			Help: "Total number of scrape tasks by outcome",
		},
		[]string{"job", "outcome"},
	)

	// ScrapeFetchDuration measures one provider fetch
	ScrapeFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_fetch_duration_seconds",
			Help:    "Time taken by a provider to fetch one target",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"job"},
	)

	// ScrapeBatchSelected reports how many targets the last selection returned
	ScrapeBatchSelected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrape_batch_selected",
			Help: "Number of stale targets selected by the last batch",
		},
		[]string{"job"},
	)

	// ScrapeBatchDuration measures a whole batch run
	ScrapeBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_batch_duration_seconds",
			Help:    "Time taken by a batch run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"job"},
	)

	// FailureRecordsTotal counts error record writes by result (stored, dropped)
	FailureRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_failure_records_total",
			Help: "Total number of error records written or dropped",
		},
		[]string{"result"},
	)
)

// Provider metrics track outbound API calls
var (
	// ProviderRequestsTotal counts provider requests by result
	// (ok, no_data, unavailable, error, circuit_open)
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_provider_requests_total",
			Help: "Total number of provider API requests",
		},
		[]string{"provider", "result"},
	)
)

// CircuitBreakerState reports the state of each breaker
// (0 closed, 1 half-open, 2 open)
var CircuitBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	},
	[]string{"breaker"},
)

// Store metrics track the backing store
var (
	// StoreRequestsTotal counts store operations
	StoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_requests_total",
			Help: "Total number of store requests",
		},
		[]string{"backend", "operation", "status"},
	)

	// StoreRequestDuration measures store operation duration
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_request_duration_seconds",
			Help:    "Store request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"backend", "operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
