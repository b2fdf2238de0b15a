package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/observability/slo"
	"rsd-scraper/internal/observability/tracing"
	"rsd-scraper/internal/repository"
	"rsd-scraper/internal/resilience/retry"

	"github.com/google/uuid"
)

// Config holds the tunables of a Service.
type Config struct {
	// MaxConcurrent caps simultaneous tasks of one batch.
	MaxConcurrent int
	// DefaultLimit is the batch size used when Run is called with limit 0.
	DefaultLimit int
	// StoreRetry configures retries of the selection read.
	StoreRetry retry.Config
	// Now returns the timestamp written by a batch. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		DefaultLimit:  10,
		StoreRetry:    retry.StoreReadConfig(),
		Now:           time.Now,
	}
}

// Service runs scrape batches for a registry of jobs.
type Service struct {
	jobs         map[string]*Job
	selector     *Selector
	runner       *Runner
	writer       *Writer
	now          func() time.Time
	defaultLimit int
}

// NewService creates a Service for jobs. Job names must be unique.
func NewService(
	targets repository.TargetRepository,
	mentions repository.MentionRepository,
	errs repository.ErrorRepository,
	jobs []*Job,
	cfg Config,
) (*Service, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultLimit < 1 {
		return nil, fmt.Errorf("%w: default limit %d", ErrInvalidLimit, cfg.DefaultLimit)
	}

	registry := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		if j == nil || j.Name == "" || j.Fetcher == nil {
			return nil, fmt.Errorf("%w: job must have a name and a fetcher", entity.ErrInvalidInput)
		}
		if _, dup := registry[j.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate job %q", entity.ErrInvalidInput, j.Name)
		}
		registry[j.Name] = j
	}

	recorder := NewFailureRecorder(errs, targets, cfg.Now)
	return &Service{
		jobs:         registry,
		selector:     NewSelector(targets, cfg.StoreRetry),
		runner:       NewRunner(cfg.MaxConcurrent),
		writer:       NewWriter(targets, mentions, recorder),
		now:          cfg.Now,
		defaultLimit: cfg.DefaultLimit,
	}, nil
}

// Jobs returns the registered jobs sorted by name.
func (s *Service) Jobs() []*Job {
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Job returns the job registered under name.
func (s *Service) Job(name string) (*Job, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return j, nil
}

// Run refreshes up to limit stale targets of the named job and blocks until
// every dispatched task has finished. A limit of 0 uses the default limit.
//
// Only an unknown job, an invalid limit or a failed selection is returned as
// an error. Individual task failures are recorded in the store and counted in
// the returned stats.
func (s *Service) Run(ctx context.Context, jobName string, limit int) (*BatchStats, error) {
	job, err := s.Job(jobName)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithRunID(ctx, logging.FromContext(ctx)).With(slog.String("job", job.Name))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracing.StartBatch(ctx, job.Name, limit)
	defer span.End()

	start := time.Now()
	targets, err := s.selector.Select(ctx, job.Query(limit))
	if err != nil {
		tracing.RecordOutcome(span, "selection_failed", err)
		logger.Error("failed to select stale targets", slog.Any("error", err))
		return nil, err
	}

	// One timestamp for the whole batch.
	scrapedAt := s.now()
	logger.Info("batch started",
		slog.Int("limit", limit),
		slog.Int("selected", len(targets)))

	stats := s.runner.Run(ctx, targets, func(ctx context.Context, t entity.Target) Outcome {
		return s.processTarget(ctx, job, t, scrapedAt)
	})
	stats.Job = job.Name
	stats.Duration = time.Since(start)

	metrics.RecordBatch(job.Name, stats.Selected, stats.Duration)
	objective := slo.BatchResult{
		Selected:    stats.Selected,
		Succeeded:   stats.Updated + stats.Empty,
		WriteFailed: stats.WriteFailed,
		Seconds:     stats.Duration.Seconds(),
	}
	slo.RecordBatch(job.Name, objective)
	if !objective.Met() {
		logger.Warn("batch missed its service level objectives")
	}
	tracing.RecordOutcome(span, "completed", nil)
	logger.Info("batch completed",
		slog.Int("selected", stats.Selected),
		slog.Int("updated", stats.Updated),
		slog.Int("empty", stats.Empty),
		slog.Int("failed", stats.Failed),
		slog.Int("write_failed", stats.WriteFailed),
		slog.Int("cancelled", stats.Cancelled),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("duration", stats.Duration))

	return &stats, nil
}

// processTarget fetches and saves one target. Writes use a context detached
// from batch cancellation so that a fetched result is never lost halfway.
func (s *Service) processTarget(ctx context.Context, job *Job, t entity.Target, scrapedAt time.Time) Outcome {
	ctx, span := tracing.StartTask(ctx, job.Name, t.ID.String())
	defer span.End()

	logger := logging.FromContext(ctx).With(
		slog.String("entity_id", t.ID.String()),
		slog.String("reference", t.Reference))
	ctx = logging.WithLogger(ctx, logger)

	fetchStart := time.Now()
	res := s.fetch(ctx, job, t)
	metrics.RecordFetchDuration(job.Name, time.Since(fetchStart))

	if abandoned(ctx, res) {
		logger.Warn("fetch abandoned, batch cancelled", slog.Any("error", res.Err))
		metrics.RecordTask(job.Name, string(OutcomeCancelled))
		tracing.RecordOutcome(span, string(OutcomeCancelled), nil)
		return OutcomeCancelled
	}

	outcome, err := s.save(context.WithoutCancel(ctx), job, t, res, scrapedAt)
	switch {
	case err != nil:
		logger.Error("failed to save result", slog.Any("error", err))
	case outcome == OutcomeFailed:
		logger.Warn("fetch failed", slog.String("error", logging.SanitizeError(res.Err)))
	default:
		logger.Debug("target refreshed", slog.String("outcome", string(outcome)))
	}

	metrics.RecordTask(job.Name, string(outcome))
	if err == nil {
		err = res.Err
	}
	tracing.RecordOutcome(span, string(outcome), err)
	return outcome
}

// fetch calls the job's fetcher, converting a panic into a failure.
func (s *Service) fetch(ctx context.Context, job *Job, t entity.Target) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Failure(&panicError{stage: "fetcher", value: rec, stack: string(debug.Stack())})
		}
	}()
	return NewResult(job.Fetcher.Fetch(ctx, t.Reference))
}

// save writes res. A panic while writing is recorded as a failure of the
// target so that its timestamp still advances.
func (s *Service) save(ctx context.Context, job *Job, t entity.Target, res Result, at time.Time) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			perr := &panicError{stage: "save", value: rec, stack: string(debug.Stack())}
			outcome, err = s.writer.Save(ctx, job, t, Failure(perr), at)
		}
	}()
	return s.writer.Save(ctx, job, t, res, at)
}

// abandoned reports whether a failed fetch ended because the batch ran out of
// time rather than because the provider failed.
func abandoned(ctx context.Context, res Result) bool {
	if res.Status != StatusFailed {
		return false
	}
	if errors.Is(res.Err, ErrBudgetExhausted) {
		return true
	}
	return ctx.Err() != nil && isContextError(res.Err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// panicError is a recovered panic of a fetcher or of the write path. It
// classifies as ErrProvider.
type panicError struct {
	stage string
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.stage, e.value)
}

func (e *panicError) Unwrap() error { return ErrProvider }

func (e *panicError) StackTrace() string { return e.Error() + "\n" + e.stack }
