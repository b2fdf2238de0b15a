// Package observability groups the logging, metrics and tracing packages used
// by the scrapers.
//
// Subpackages:
//   - logging: slog setup, context propagation and secret scrubbing
//   - metrics: Prometheus metrics for batches, tasks, providers and stores
//   - tracing: OpenTelemetry spans for batches, tasks and outbound HTTP calls
//   - slo: per-job batch objectives
package observability
