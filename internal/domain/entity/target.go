// Package entity defines the domain types shared by the scrapers: the stored
// entities that are refreshed, the freshness fields tracking when each category
// of external data was last scraped, and the payloads written back.
package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// Target is the read-only projection of a stored entity handed to a provider.
// Every collection normalises to an id plus the external reference (repository
// URL, ROR id, DOI or package URL) the provider understands.
type Target struct {
	ID        uuid.UUID `json:"id"`
	Reference string    `json:"reference"`
}

// Collection describes the table a target lives in.
type Collection struct {
	Table           string
	IDColumn        string
	ReferenceColumn string
}

// Known collections.
var (
	RepositoryURLs = Collection{Table: "repository_url", IDColumn: "software", ReferenceColumn: "url"}
	Organisations  = Collection{Table: "organisation", IDColumn: "id", ReferenceColumn: "ror_id"}
	PackageManager = Collection{Table: "package_manager", IDColumn: "id", ReferenceColumn: "url"}
	Mentions       = Collection{Table: "mention", IDColumn: "id", ReferenceColumn: "doi"}
)

// FilterOp is a comparison supported by every store backend.
type FilterOp string

const (
	OpEq        FilterOp = "eq"
	OpNotIsNull FilterOp = "not.is.null"
)

// Filter restricts a staleness query to one provider or platform.
type Filter struct {
	Column string
	Op     FilterOp
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// NotNull builds a filter excluding rows where column is null.
func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotIsNull}
}

// FreshnessField pairs a payload with the column recording when it was last
// scraped. ErrorColumn, when set, holds a short diagnostic of the last failure.
type FreshnessField struct {
	ScrapedAtColumn string
	ErrorColumn     string
}

// StalenessQuery selects the Limit targets whose Field was scraped longest ago,
// never-scraped rows first.
type StalenessQuery struct {
	Collection Collection
	Filters    []Filter
	Field      FreshnessField
	Limit      int
}

// Validate checks that the query can be rendered by a store.
func (q StalenessQuery) Validate() error {
	if q.Collection.Table == "" {
		return &ValidationError{Field: "collection", Message: "table is required"}
	}
	if q.Field.ScrapedAtColumn == "" {
		return &ValidationError{Field: "field", Message: "scraped_at column is required"}
	}
	if q.Limit <= 0 {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be positive, got %d", q.Limit)}
	}
	for _, f := range q.Filters {
		if f.Op != OpEq && f.Op != OpNotIsNull {
			return &ValidationError{Field: "filters", Message: fmt.Sprintf("unsupported operator %q", f.Op)}
		}
	}
	return nil
}
