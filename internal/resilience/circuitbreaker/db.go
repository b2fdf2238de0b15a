package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DBConfig returns the configuration of the postgres store breaker: it opens
// when at least five statements in the current window failed without a
// success, and goes half-open after 30s.
func DBConfig() Config {
	return Config{
		Name:             "database",
		HalfOpenRequests: 3,
		Window:           time.Minute,
		OpenTimeout:      30 * time.Second,
		FailureRatio:     1.0,
		MinRequests:      5,
		IsSuccessful:     dbSuccess,
	}
}

// dbSuccess does not hold a missing row or a statement cancelled by its
// caller against the database.
func dbSuccess(err error) bool {
	return err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled)
}

// DB runs the statements of the postgres store through a breaker.
type DB struct {
	db      *sql.DB
	breaker *Breaker
}

// NewDB wraps db with a breaker configured by DBConfig.
func NewDB(db *sql.DB) *DB {
	return &DB{db: db, breaker: New(DBConfig())}
}

// QueryContext runs a query. The caller closes the returned rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return Run(d.breaker, func() (*sql.Rows, error) {
		return d.db.QueryContext(ctx, query, args...)
	})
}

// ExecContext runs a statement that returns no rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return Run(d.breaker, func() (sql.Result, error) {
		return d.db.ExecContext(ctx, query, args...)
	})
}

// ScanRow runs a single-row query and scans it into dest. sql.Row defers its
// error until Scan, so the query and the scan share one breaker call.
// sql.ErrNoRows is returned unchanged.
func (d *DB) ScanRow(ctx context.Context, query string, args []any, dest ...any) error {
	return d.breaker.Do(func() error {
		return d.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}
