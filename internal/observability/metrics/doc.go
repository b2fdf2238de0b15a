// Package metrics provides the Prometheus metrics of the scrapers.
//
// All metrics are registered with the default registry through promauto and
// exposed by the schedule command on /metrics.
//
// Example usage:
//
//	start := time.Now()
//	payload, err := fetcher.Fetch(ctx, target.Reference)
//	metrics.RecordFetchDuration("github-stats", time.Since(start))
//	metrics.RecordTask("github-stats", "updated")
package metrics
