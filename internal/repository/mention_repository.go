package repository

import (
	"context"

	"rsd-scraper/internal/domain/entity"

	"github.com/google/uuid"
)

type MentionRepository interface {
	// Upsert inserts m or merges it into the row matching conflictColumns and
	// returns the id of the resulting row.
	Upsert(ctx context.Context, m *entity.MentionRecord, conflictColumns []string) (uuid.UUID, error)
	// FindIDByDOI returns entity.ErrNotFound when no mention has the DOI.
	FindIDByDOI(ctx context.Context, doi string) (uuid.UUID, error)
	LinkCitations(ctx context.Context, referencePaper uuid.UUID, citations []uuid.UUID) error
}
