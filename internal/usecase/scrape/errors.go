// Package scrape implements the staleness-driven scrape-and-upsert pipeline:
// select the targets whose data is most overdue, fetch fresh data for each
// from a provider, and write the result back so that every attempt advances
// the target's scraped_at timestamp.
package scrape

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for scrape use case operations.
var (
	// ErrInvalidReference indicates a malformed external reference. It is
	// never fixed by fetching again, but the timestamp still advances.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrProviderUnavailable indicates a transient provider failure such as a
	// timeout, rate limit, 5xx response or an open circuit breaker.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProvider indicates a permanent provider failure such as rejected
	// credentials or a malformed response body.
	ErrProvider = errors.New("provider error")

	// ErrStoreUnavailable indicates that a read from or write to the store failed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNoData is returned by fetchers when the provider has nothing for the
	// reference. It is not a failure and becomes an empty result.
	ErrNoData = errors.New("no data available")

	// ErrBudgetExhausted indicates that a task gave up before contacting the
	// provider because waiting for its rate limit would outlast the batch
	// deadline. It wraps context.DeadlineExceeded and leaves the target untouched.
	ErrBudgetExhausted = fmt.Errorf("batch budget exhausted: %w", context.DeadlineExceeded)

	// ErrInvalidLimit indicates a batch size below one.
	ErrInvalidLimit = errors.New("invalid batch limit")

	// ErrUnknownJob indicates that no job is registered under the given name.
	ErrUnknownJob = errors.New("unknown job")
)
