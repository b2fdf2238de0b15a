package scrape

import (
	"context"

	"rsd-scraper/internal/domain/entity"
)

// Fetcher fetches fresh data for one external reference. Implementations
// perform one logical unit of remote work and never retry in-process.
//
// A nil payload or an error wrapping ErrNoData means the provider has nothing
// for the reference. A malformed reference must be reported with an error
// wrapping ErrInvalidReference before any request is sent.
type Fetcher interface {
	Fetch(ctx context.Context, reference string) (entity.Payload, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, reference string) (entity.Payload, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, reference string) (entity.Payload, error) {
	return f(ctx, reference)
}

// Job binds a provider to the collection and freshness field it refreshes.
type Job struct {
	// Name selects the job on the command line, e.g. "github-stats".
	Name string
	// Origin is written as service_name of error records.
	Origin     string
	Collection entity.Collection
	Filters    []entity.Filter
	Field      entity.FreshnessField
	Fetcher    Fetcher
}

// Query builds the staleness query selecting limit targets for the job.
func (j *Job) Query(limit int) entity.StalenessQuery {
	return entity.StalenessQuery{
		Collection: j.Collection,
		Filters:    j.Filters,
		Field:      j.Field,
		Limit:      limit,
	}
}
