package scrape

import (
	"context"
	"fmt"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/repository"
	"rsd-scraper/internal/resilience/retry"
)

// Selector picks the targets most overdue for a refresh.
type Selector struct {
	repo  repository.TargetRepository
	retry retry.Config
}

// NewSelector creates a Selector. Store reads are retried according to
// retryCfg since a failed selection aborts the whole batch.
func NewSelector(repo repository.TargetRepository, retryCfg retry.Config) *Selector {
	return &Selector{repo: repo, retry: retryCfg}
}

// Select returns at most q.Limit targets ordered by scraped_at ascending,
// never-scraped targets first. Any store failure is returned wrapped in
// ErrStoreUnavailable and no partial selection is returned.
func (s *Selector) Select(ctx context.Context, q entity.StalenessQuery) ([]entity.Target, error) {
	if q.Limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, q.Limit)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Collection.Table, err)
	}

	var targets []entity.Target
	err := retry.WithBackoff(ctx, s.retry, func() error {
		var listErr error
		targets, listErr = s.repo.ListStale(ctx, q)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %w", ErrStoreUnavailable, q.Collection.Table, err)
	}

	if len(targets) > q.Limit {
		targets = targets[:q.Limit]
	}
	return targets, nil
}
