// Package tracing provides OpenTelemetry spans for batch runs, per-target tasks
// and outbound HTTP calls.
//
// Spans are created through the global tracer provider, so callers that do not
// install one get no-op spans:
//
//	ctx, span := tracing.StartBatch(ctx, "github-stats", 10)
//	defer span.End()
package tracing
