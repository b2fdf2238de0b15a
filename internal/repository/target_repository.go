package repository

import (
	"context"

	"rsd-scraper/internal/domain/entity"

	"github.com/google/uuid"
)

// TargetRepository reads stale targets and writes freshness fields back.
type TargetRepository interface {
	// ListStale returns at most q.Limit targets ordered by q.Field's
	// scraped_at column ascending, never-scraped rows first.
	ListStale(ctx context.Context, q entity.StalenessQuery) ([]entity.Target, error)
	// Patch applies a partial update to the row of c identified by id.
	Patch(ctx context.Context, c entity.Collection, id uuid.UUID, fields map[string]any) error
}
