// Package retry provides exponential backoff with jitter for operations whose
// failure aborts a whole batch, such as the initial staleness read. Provider
// fetches are never retried in-process; the staleness queue retries them on
// the next run.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"rsd-scraper/internal/observability/logging"
)

// Config holds the backoff schedule.
type Config struct {
	// MaxAttempts counts the first call. Values below one mean one attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts before jitter is added.
	MaxDelay time.Duration
	// Multiplier grows the wait after every attempt.
	Multiplier float64
	// JitterFraction adds up to this share of the wait at random (0 to 1).
	JitterFraction float64
}

// StoreReadConfig returns the configuration used when selecting stale targets.
// A failed selection aborts the run, so a few quick attempts are made first.
func StoreReadConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WithBackoff calls fn until it succeeds, fails with an error IsRetryable
// rejects, or cfg.MaxAttempts calls have been made. Retries are logged with
// the logger carried by ctx.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	logger := logging.FromContext(ctx)
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		switch {
		case err == nil:
			if attempt > 1 {
				logger.Info("store read recovered", slog.Int("attempt", attempt))
			}
			return nil
		case !IsRetryable(err):
			return err
		case attempt == attempts:
			if attempts == 1 {
				return err
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		logger.Warn("store read failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", logging.SanitizeError(err)))

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
		delay = next(delay, cfg)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next returns the wait after d: multiplied, capped at MaxDelay, plus jitter.
func next(d time.Duration, cfg Config) time.Duration {
	d = time.Duration(float64(d) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.JitterFraction <= 0 {
		return d
	}
	// #nosec G404 -- jitter does not need cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*min(cfg.JitterFraction, 1))
}

// IsRetryable reports whether a failed store call may succeed when repeated:
// network timeouts, refused or reset connections, a broken pooled connection
// and transient HTTP statuses from PostgREST. Cancellation never retries.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	if code, ok := StatusCode(err); ok {
		return IsTransientStatus(code)
	}
	return false
}

// IsTransientStatus reports whether an HTTP status is expected to clear up on
// its own: 408, 429 and every 5xx.
func IsTransientStatus(code int) bool {
	return code >= 500 && code < 600 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// HTTPError is a non-2xx answer from a provider or PostgREST.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the status of an *HTTPError anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
