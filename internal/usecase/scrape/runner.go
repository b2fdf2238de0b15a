package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Outcome is the terminal state of one task.
type Outcome string

const (
	OutcomeUpdated     Outcome = "updated"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFailed      Outcome = "failed"
	OutcomeWriteFailed Outcome = "write_failed"
	// OutcomeCancelled means the batch was cancelled while the task was
	// fetching. Nothing is written and the target stays where it was in the
	// staleness queue.
	OutcomeCancelled Outcome = "cancelled"
)

// TaskFunc processes one target and reports its outcome.
type TaskFunc func(ctx context.Context, t entity.Target) Outcome

// BatchStats contains statistics about a batch run.
type BatchStats struct {
	Job         string
	Selected    int
	Updated     int
	Empty       int
	Failed      int
	WriteFailed int
	Cancelled   int
	// Skipped counts targets never dispatched because the batch was cancelled.
	Skipped  int
	Duration time.Duration
}

// Completed returns the number of tasks that reached a terminal write.
func (s *BatchStats) Completed() int {
	return s.Updated + s.Empty + s.Failed + s.WriteFailed
}

func (s *BatchStats) add(o Outcome) {
	switch o {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeEmpty:
		s.Empty++
	case OutcomeFailed:
		s.Failed++
	case OutcomeWriteFailed:
		s.WriteFailed++
	case OutcomeCancelled:
		s.Cancelled++
	}
}

// Runner runs one task per target with bounded concurrency.
type Runner struct {
	maxConcurrent int
}

// NewRunner creates a Runner allowing at most maxConcurrent simultaneous
// tasks. Values below one mean no limit.
func NewRunner(maxConcurrent int) *Runner {
	return &Runner{maxConcurrent: maxConcurrent}
}

// Run dispatches fn for every target and blocks until all dispatched tasks
// have returned. A failing or panicking task never affects its siblings.
// Once ctx is cancelled no further tasks are dispatched.
func (r *Runner) Run(ctx context.Context, targets []entity.Target, fn TaskFunc) BatchStats {
	stats := BatchStats{Selected: len(targets)}
	var mu sync.Mutex

	var sem *semaphore.Weighted
	if r.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(r.maxConcurrent))
	}

	var g errgroup.Group
	for i, target := range targets {
		target := target
		if err := acquire(ctx, sem); err != nil {
			stats.Skipped = len(targets) - i
			break
		}

		g.Go(func() error {
			if sem != nil {
				defer sem.Release(1)
			}
			outcome := r.runTask(ctx, target, fn)
			mu.Lock()
			stats.add(outcome)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return stats
}

// acquire waits for a free slot and reports ctx's error if the batch was
// cancelled meanwhile.
func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if sem == nil {
		return ctx.Err()
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		sem.Release(1)
		return err
	}
	return nil
}

func (r *Runner) runTask(ctx context.Context, t entity.Target, fn TaskFunc) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(ctx).Error("task panicked",
				slog.String("entity_id", t.ID.String()),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())))
			outcome = OutcomeFailed
		}
	}()
	return fn(ctx, t)
}
