// Package circuitbreaker stops calling a provider or store that keeps failing.
// It wraps github.com/sony/gobreaker; every state change is logged and
// exported as the circuit_breaker_state gauge.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rsd-scraper/internal/observability/metrics"

	"github.com/sony/gobreaker"
)

// Config describes when a breaker opens and how it recovers.
type Config struct {
	// Name labels logs and the state gauge, e.g. "github" or "postgrest".
	Name string
	// HalfOpenRequests is the number of trial calls let through while half-open.
	HalfOpenRequests uint32
	// Window is the period after which closed-state counts are reset.
	Window time.Duration
	// OpenTimeout is how long the breaker rejects calls before going half-open.
	OpenTimeout time.Duration
	// FailureRatio trips the breaker once reached over at least MinRequests calls.
	FailureRatio float64
	MinRequests  uint32
	// IsSuccessful decides whether an error counts against the breaker.
	// Nil means only a nil error is a success.
	IsSuccessful func(err error) bool
}

// ProviderConfig returns the configuration for an external data provider.
// Providers are called once per stale target, so the breaker trips on a
// sustained failure ratio and stays open long enough to skip the rest of the
// batch.
func ProviderConfig(name string, isSuccessful func(error) bool) Config {
	return Config{
		Name:             name,
		HalfOpenRequests: 3,
		Window:           time.Minute,
		OpenTimeout:      5 * time.Minute,
		FailureRatio:     0.7,
		MinRequests:      10,
		IsSuccessful:     isSuccessful,
	}
}

// StoreConfig returns the configuration for the PostgREST API.
func StoreConfig(name string, isSuccessful func(error) bool) Config {
	return Config{
		Name:             name,
		HalfOpenRequests: 3,
		Window:           30 * time.Second,
		OpenTimeout:      time.Minute,
		FailureRatio:     0.6,
		MinRequests:      5,
		IsSuccessful:     isSuccessful,
	}
}

// Breaker guards calls to one dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	metrics.RecordBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.Window,
		Timeout:       cfg.OpenTimeout,
		ReadyToTrip:   tripAt(cfg.FailureRatio, cfg.MinRequests),
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: onStateChange,
	})}
}

func tripAt(ratio float64, minRequests uint32) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests == 0 || c.Requests < minRequests {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

func onStateChange(name string, from, to gobreaker.State) {
	metrics.RecordBreakerState(name, int(to))
	level := slog.LevelWarn
	if to == gobreaker.StateClosed {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

// Run calls fn through b. While b is open fn is not called and the returned
// error satisfies IsOpenError.
func Run[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// Do is Run for calls that only return an error.
func (b *Breaker) Do(fn func() error) error {
	_, err := Run(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// State returns the current state of b.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// IsOpenError reports whether err was returned because the breaker rejected the
// call without running it.
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
