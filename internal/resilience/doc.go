// Package resilience groups the fault tolerance helpers used by the scrapers.
//
//   - circuitbreaker: one breaker per provider API, plus a database breaker
//     for the postgres store
//   - retry: exponential backoff with jitter, used only for the staleness
//     read that starts a batch
//
// Provider fetches are single-shot. A failed fetch advances the
// target's scraped_at timestamp and is retried on a later run.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.ProviderConfig("github", isSuccessful))
//	resp, err := circuitbreaker.Run(cb, func() (*response, error) {
//	    return callProvider(ctx)
//	})
//
//	err = retry.WithBackoff(ctx, retry.StoreReadConfig(), func() error {
//	    return selectStaleTargets()
//	})
package resilience
