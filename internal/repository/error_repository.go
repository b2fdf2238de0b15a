package repository

import (
	"context"

	"rsd-scraper/internal/domain/entity"
)

type ErrorRepository interface {
	Append(ctx context.Context, rec *entity.ErrorRecord) error
}
