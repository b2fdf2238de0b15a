package metrics

import (
	"time"
)

// RecordTask records the terminal outcome of one target.
func RecordTask(job, outcome string) {
	ScrapeTasksTotal.WithLabelValues(job, outcome).Inc()
}

// RecordFetchDuration records the time a provider took for one target.
func RecordFetchDuration(job string, duration time.Duration) {
	ScrapeFetchDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordBatch records the size and duration of a finished batch.
func RecordBatch(job string, selected int, duration time.Duration) {
	ScrapeBatchSelected.WithLabelValues(job).Set(float64(selected))
	ScrapeBatchDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordFailureRecord records whether an error record reached the store.
func RecordFailureRecord(stored bool) {
	result := "stored"
	if !stored {
		result = "dropped"
	}
	FailureRecordsTotal.WithLabelValues(result).Inc()
}

// RecordProviderRequest records one outbound provider request.
func RecordProviderRequest(provider, result string) {
	ProviderRequestsTotal.WithLabelValues(provider, result).Inc()
}

// RecordStoreRequest records one store operation. A nil err is reported as
// status "ok".
func RecordStoreRequest(backend, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreRequestsTotal.WithLabelValues(backend, operation, status).Inc()
	StoreRequestDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordBreakerState records the current state of a circuit breaker.
func RecordBreakerState(breaker string, state int) {
	CircuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
