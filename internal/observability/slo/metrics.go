// Package slo tracks the service level objectives of scrape batches.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets of a scrape batch.
const (
	// TargetSuccessSLO is the minimum share of selected targets that must end
	// updated or empty. Provider outages count against it.
	TargetSuccessSLO = 0.95

	// WriteFailureSLO is the maximum share of selected targets whose result
	// could not be written back.
	WriteFailureSLO = 0.01

	// BatchDurationSLO is the target wall time of one batch in seconds.
	BatchDurationSLO = 600.0
)

// These gauges hold the value of the most recent batch of each job.
var (
	// SLOTargetSuccess is (updated + empty) / selected.
	SLOTargetSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_scrape_target_success_ratio",
			Help: "Share of selected targets refreshed by the last batch (0-1), target: 0.95",
		},
		[]string{"job"},
	)

	// SLOWriteFailure is write_failed / selected.
	SLOWriteFailure = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_scrape_write_failure_ratio",
			Help: "Share of selected targets whose write failed in the last batch (0-1), target: 0.01",
		},
		[]string{"job"},
	)

	// SLOBatchDuration is the wall time of the last batch in seconds.
	SLOBatchDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_scrape_batch_duration_seconds",
			Help: "Wall time of the last batch in seconds, target: 600",
		},
		[]string{"job"},
	)
)

// BatchResult is the subset of batch statistics the objectives are computed from.
type BatchResult struct {
	Selected    int
	Succeeded   int
	WriteFailed int
	Seconds     float64
}

// RecordBatch updates the SLO gauges of job. Ratios are left untouched for a
// batch that selected nothing.
func RecordBatch(job string, r BatchResult) {
	SLOBatchDuration.WithLabelValues(job).Set(r.Seconds)
	if r.Selected <= 0 {
		return
	}
	SLOTargetSuccess.WithLabelValues(job).Set(float64(r.Succeeded) / float64(r.Selected))
	SLOWriteFailure.WithLabelValues(job).Set(float64(r.WriteFailed) / float64(r.Selected))
}

// Met reports whether r satisfies every objective.
func (r BatchResult) Met() bool {
	if r.Seconds > BatchDurationSLO {
		return false
	}
	if r.Selected == 0 {
		return true
	}
	sel := float64(r.Selected)
	return float64(r.Succeeded)/sel >= TargetSuccessSLO && float64(r.WriteFailed)/sel <= WriteFailureSLO
}
