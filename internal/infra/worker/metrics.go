package worker

import (
	"rsd-scraper/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ScraperMetrics holds the metrics of the scheduler and of configuration
// loading. Per-task metrics live in internal/observability/metrics.
type ScraperMetrics struct {
	*config.ConfigMetrics

	// ScheduledRunsTotal counts scheduled batches by job and status
	// (success, failure, skipped).
	ScheduledRunsTotal *prometheus.CounterVec

	ScheduledRunDuration *prometheus.HistogramVec

	// TargetsProcessedTotal counts targets that reached a terminal write.
	TargetsProcessedTotal *prometheus.CounterVec

	LastSuccessTimestamp *prometheus.GaugeVec
}

// NewScraperMetrics registers the scheduler metrics with reg and the
// configuration metrics under the scraper_config_ prefix.
func NewScraperMetrics(reg prometheus.Registerer) *ScraperMetrics {
	factory := promauto.With(reg)
	return &ScraperMetrics{
		ConfigMetrics: config.NewConfigMetricsWith(reg, "scraper"),

		ScheduledRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_cron_runs_total",
			Help: "Total number of scheduled batches by job and status",
		}, []string{"job", "status"}),

		ScheduledRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_cron_run_duration_seconds",
			Help:    "Duration of scheduled batches in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800}, // 1s, 5s, 30s, 1m, 5m, 15m, 30m
		}, []string{"job"}),

		TargetsProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_cron_targets_processed_total",
			Help: "Total number of targets processed across scheduled batches",
		}, []string{"job"}),

		LastSuccessTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scraper_cron_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduled batch per job",
		}, []string{"job"}),
	}
}

// RecordRun records the status of one scheduled batch.
func (m *ScraperMetrics) RecordRun(job, status string) {
	m.ScheduledRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordRunDuration records how long one scheduled batch took.
func (m *ScraperMetrics) RecordRunDuration(job string, seconds float64) {
	m.ScheduledRunDuration.WithLabelValues(job).Observe(seconds)
}

// RecordTargetsProcessed adds count processed targets for job.
func (m *ScraperMetrics) RecordTargetsProcessed(job string, count int) {
	m.TargetsProcessedTotal.WithLabelValues(job).Add(float64(count))
}

// RecordLastSuccess sets the last success timestamp of job to now.
func (m *ScraperMetrics) RecordLastSuccess(job string) {
	m.LastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
}
