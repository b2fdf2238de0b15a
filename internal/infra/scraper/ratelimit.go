package scraper

import (
	"context"
	"fmt"

	"rsd-scraper/internal/usecase/scrape"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every fetcher calling the same
// provider, so that concurrent tasks of a batch stay under the provider's
// request quota.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing requestsPerSecond sustained
// requests with bursts of up to burst requests. A non-positive rate disables
// limiting.
//
// Example:
//
//	limiter := NewRateLimiter(1.0, 5) // GitHub: 5000 req/h
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or ctx is done. When the token would
// only become available after the deadline of ctx, Wait returns at once with
// an error wrapping scrape.ErrBudgetExhausted.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", scrape.ErrBudgetExhausted, err)
	}
	return nil
}
