package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/repository"

	"github.com/google/uuid"
)

// Conflict keys of the mention table.
var (
	conflictOnDOI        = []string{"doi"}
	conflictOnExternalID = []string{"external_id", "source"}
)

// ConflictKey returns the columns used to merge m into an existing row: its
// DOI when present, otherwise (external_id, source).
func ConflictKey(m *entity.MentionRecord) []string {
	if m.HasDOI() {
		return conflictOnDOI
	}
	return conflictOnExternalID
}

// Writer merges fetch results back into the store. Every call advances the
// scraped_at timestamp of the job's field, whatever the result.
type Writer struct {
	targets  repository.TargetRepository
	mentions repository.MentionRepository
	recorder *FailureRecorder
}

// NewWriter creates a Writer.
func NewWriter(targets repository.TargetRepository, mentions repository.MentionRepository, recorder *FailureRecorder) *Writer {
	return &Writer{targets: targets, mentions: mentions, recorder: recorder}
}

// Save writes res for target t of job, stamped with at. A returned error
// wraps ErrStoreUnavailable; the failure has already been recorded and a
// timestamp bump attempted.
func (w *Writer) Save(ctx context.Context, job *Job, t entity.Target, res Result, at time.Time) (Outcome, error) {
	switch res.Status {
	case StatusUpdated:
		if isNilPayload(res.Payload) {
			return w.Save(ctx, job, t, Empty(), at)
		}
		if err := w.writePayload(ctx, job, t, res.Payload, at); err != nil {
			return w.writeFailed(ctx, job, t, err, at)
		}
		return OutcomeUpdated, nil

	case StatusEmpty:
		if err := w.targets.Patch(ctx, job.Collection, t.ID, freshFields(job.Field, at)); err != nil {
			return w.writeFailed(ctx, job, t, err, at)
		}
		return OutcomeEmpty, nil

	default:
		cause := res.Err
		if cause == nil {
			cause = errors.New("fetch failed without error")
		}
		w.recorder.Record(ctx, job.Origin, job.Collection.Table, &t.ID, cause)
		_ = w.recorder.AttachErrorMessage(ctx, job.Collection, t.ID, logging.SanitizeError(cause), job.Field, at)
		return OutcomeFailed, nil
	}
}

func (w *Writer) writePayload(ctx context.Context, job *Job, t entity.Target, p entity.Payload, at time.Time) error {
	switch payload := p.(type) {
	case *entity.MentionRecord:
		return w.writeMention(ctx, t, payload, at)
	case entity.Citations:
		return w.writeCitations(ctx, job, t, payload, at)
	default:
		fields := freshFields(job.Field, at)
		for col, v := range p.Columns() {
			fields[col] = v
		}
		return w.targets.Patch(ctx, job.Collection, t.ID, fields)
	}
}

// writeMention merges a refreshed mention into the row sharing its key. The
// mention's own scraped_at column is the freshness field of the job.
func (w *Writer) writeMention(ctx context.Context, t entity.Target, m *entity.MentionRecord, at time.Time) error {
	stamped := *m
	if !stamped.HasDOI() && t.Reference != "" {
		doi := t.Reference
		stamped.DOI = &doi
	}
	if err := stamped.Validate(); err != nil {
		return err
	}
	stamped.ScrapedAt = &at
	if _, err := w.mentions.Upsert(ctx, &stamped, ConflictKey(&stamped)); err != nil {
		return fmt.Errorf("upsert mention: %w", err)
	}
	return nil
}

// writeCitations merges every citing work, links them to the reference paper
// and then stamps the reference paper.
func (w *Writer) writeCitations(ctx context.Context, job *Job, t entity.Target, citations entity.Citations, at time.Time) error {
	logger := logging.FromContext(ctx)

	ids := make([]uuid.UUID, 0, len(citations))
	for _, c := range citations {
		if c == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			logger.Debug("skipping citation without identifier",
				slog.String("title", c.Title),
				slog.Any("error", err))
			continue
		}
		stamped := *c
		stamped.ScrapedAt = &at
		id, err := w.mentions.Upsert(ctx, &stamped, ConflictKey(&stamped))
		if err != nil {
			return fmt.Errorf("upsert citation: %w", err)
		}
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		if err := w.mentions.LinkCitations(ctx, t.ID, ids); err != nil {
			return fmt.Errorf("link citations: %w", err)
		}
	}
	return w.targets.Patch(ctx, job.Collection, t.ID, freshFields(job.Field, at))
}

// writeFailed turns a failed store write into a recorded failure and a
// best-effort timestamp bump so the target still leaves the head of the queue.
func (w *Writer) writeFailed(ctx context.Context, job *Job, t entity.Target, cause error, at time.Time) (Outcome, error) {
	var verr *entity.ValidationError
	if errors.As(cause, &verr) {
		w.recorder.Record(ctx, job.Origin, job.Collection.Table, &t.ID, cause)
		_ = w.recorder.AttachErrorMessage(ctx, job.Collection, t.ID, logging.SanitizeError(cause), job.Field, at)
		return OutcomeFailed, nil
	}

	id := w.failedRowID(ctx, job, t)
	w.recorder.Record(ctx, job.Origin, job.Collection.Table, &id, cause)
	_ = w.recorder.AttachErrorMessage(ctx, job.Collection, id, logging.SanitizeError(cause), job.Field, at)
	return OutcomeWriteFailed, fmt.Errorf("%w: save %s %s: %w", ErrStoreUnavailable, job.Collection.Table, t.ID, cause)
}

// failedRowID returns the row to bump after a failed write. Mention rows are
// looked up by DOI since the DOI is what identifies them to the provider.
func (w *Writer) failedRowID(ctx context.Context, job *Job, t entity.Target) uuid.UUID {
	if job.Collection.Table != entity.Mentions.Table || t.Reference == "" || w.mentions == nil {
		return t.ID
	}
	id, err := w.mentions.FindIDByDOI(context.WithoutCancel(ctx), t.Reference)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to look up mention by doi",
			slog.String("doi", t.Reference),
			slog.Any("error", err))
		return t.ID
	}
	return id
}

// freshFields returns the columns written on every successful attempt: the
// new timestamp and, for fields that track one, a cleared error message.
func freshFields(f entity.FreshnessField, at time.Time) map[string]any {
	fields := map[string]any{f.ScrapedAtColumn: at}
	if f.ErrorColumn != "" {
		fields[f.ErrorColumn] = nil
	}
	return fields
}
