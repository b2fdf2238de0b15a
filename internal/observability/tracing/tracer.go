package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rsd-scraper"

// GetTracer returns the tracer for creating spans. It is resolved from the
// global provider on every call so a provider installed later is honoured.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartBatch starts the span covering one batch run of job.
func StartBatch(ctx context.Context, job string, limit int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "scrape.batch",
		trace.WithAttributes(
			attribute.String("job", job),
			attribute.Int("limit", limit),
		),
	)
}

// StartTask starts the span covering the fetch and save of one target.
func StartTask(ctx context.Context, job, entityID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "scrape.task",
		trace.WithAttributes(
			attribute.String("job", job),
			attribute.String("entity.id", entityID),
		),
	)
}

// RecordOutcome tags span with the task outcome and, when err is non-nil,
// marks it as failed.
func RecordOutcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}
