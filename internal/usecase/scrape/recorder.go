package scrape

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/repository"

	"github.com/google/uuid"
)

const (
	maxRecordMessageLen  = 2000
	maxStackTraceLen     = 8000
	maxDiagnosticLen     = 500
	failureRecordTimeout = 10 * time.Second
)

// stackTracer is implemented by errors that carry the stack of a recovered panic.
type stackTracer interface {
	StackTrace() string
}

// FailureRecorder persists failures next to the main write path. Nothing it
// does is allowed to fail a task: errors while recording are only logged.
type FailureRecorder struct {
	errors  repository.ErrorRepository
	targets repository.TargetRepository
	now     func() time.Time
}

// NewFailureRecorder creates a FailureRecorder.
func NewFailureRecorder(errs repository.ErrorRepository, targets repository.TargetRepository, now func() time.Time) *FailureRecorder {
	if now == nil {
		now = time.Now
	}
	return &FailureRecorder{errors: errs, targets: targets, now: now}
}

// Record appends an error record for the failure of origin on the row id of
// table. id may be nil when the row is unknown.
func (r *FailureRecorder) Record(ctx context.Context, origin, table string, id *uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	rec := &entity.ErrorRecord{
		ServiceName: origin,
		TableName:   table,
		ReferenceID: id,
		Message:     logging.Truncate(logging.SanitizeError(cause), maxRecordMessageLen),
		StackTrace:  logging.Truncate(logging.SanitizeString(stackTraceOf(cause)), maxStackTraceLen),
		CreatedAt:   r.now(),
	}

	if err := r.errors.Append(ctx, rec); err != nil {
		metrics.RecordFailureRecord(false)
		logging.FromContext(ctx).Error("failed to store error record",
			slog.String("service_name", origin),
			slog.String("table_name", table),
			slog.String("message", rec.Message),
			slog.Any("error", err))
		return
	}
	metrics.RecordFailureRecord(true)
}

// AttachErrorMessage writes the scraped_at timestamp of field together with a
// short diagnostic in field's error column, when the field has one. The
// returned error has already been logged.
func (r *FailureRecorder) AttachErrorMessage(ctx context.Context, c entity.Collection, id uuid.UUID, message string, field entity.FreshnessField, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	fields := map[string]any{field.ScrapedAtColumn: at}
	if field.ErrorColumn != "" {
		fields[field.ErrorColumn] = logging.Truncate(logging.SanitizeString(message), maxDiagnosticLen)
	}

	if err := r.targets.Patch(ctx, c, id, fields); err != nil {
		logging.FromContext(ctx).Error("failed to attach error message",
			slog.String("table_name", c.Table),
			slog.String("entity_id", id.String()),
			slog.Any("error", err))
		return err
	}
	return nil
}

// stackTraceOf renders the panic stack of err if it has one, otherwise the
// chain of wrapped errors, outermost first.
func stackTraceOf(err error) string {
	if err == nil {
		return ""
	}
	var st stackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}

	var b strings.Builder
	b.WriteString(err.Error())
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(next) {
		b.WriteString("\ncaused by: ")
		b.WriteString(next.Error())
	}
	return b.String()
}
