package scraper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rsd-scraper/internal/infra/scraper"
	"rsd-scraper/internal/usecase/scrape"
)

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("allows burst immediately", func(t *testing.T) {
		limiter := scraper.NewRateLimiter(2.0, 5)

		start := time.Now()
		for i := 0; i < 5; i++ {
			if err := limiter.Wait(context.Background()); err != nil {
				t.Fatalf("burst request %d should succeed: %v", i+1, err)
			}
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("expected burst requests to complete quickly, took %v", elapsed)
		}
	})

	t.Run("blocks when exhausted", func(t *testing.T) {
		limiter := scraper.NewRateLimiter(1.0, 1)
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := limiter.Wait(ctx); err == nil {
			t.Error("expected second request to exceed the deadline")
		}
	})

	t.Run("wait beyond deadline exhausts the budget", func(t *testing.T) {
		limiter := scraper.NewRateLimiter(1.0/60, 1)
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		err := limiter.Wait(ctx)
		if !errors.Is(err, scrape.ErrBudgetExhausted) {
			t.Fatalf("expected ErrBudgetExhausted, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to wrap context.DeadlineExceeded, got %v", err)
		}
		if errors.Is(err, scrape.ErrProviderUnavailable) || errors.Is(err, scrape.ErrProvider) {
			t.Errorf("budget exhaustion must not classify as a provider failure: %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("expected Wait to give up at once, took %v", elapsed)
		}
	})

	t.Run("cancelled context returns the context error", func(t *testing.T) {
		limiter := scraper.NewRateLimiter(1.0/60, 1)
		_ = limiter.Wait(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := limiter.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("non-positive rate disables limiting", func(t *testing.T) {
		limiter := scraper.NewRateLimiter(0, 0)
		for i := 0; i < 100; i++ {
			if err := limiter.Wait(context.Background()); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
	})

	t.Run("nil limiter never blocks", func(t *testing.T) {
		var limiter *scraper.RateLimiter
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
