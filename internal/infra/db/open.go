// Package db opens the connection pool of the postgres store backend.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/pkg/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig sizes the pool for one scrape batch: tasks write
// one row at a time, so the pool rarely needs more connections than the
// batch concurrency.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// ConnectionConfigFromEnv reads DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME and DB_CONN_MAX_IDLE_TIME. Invalid values keep the
// defaults.
func ConnectionConfigFromEnv(logger *slog.Logger) ConnectionConfig {
	cfg := DefaultConnectionConfig()
	positive := func(v int) error { return config.ValidateIntRange(v, 1, 1000) }

	warn := func(warnings []string) {
		for _, w := range warnings {
			logger.Warn("Configuration fallback applied", slog.String("warning", w))
		}
	}

	maxOpen := config.LoadEnvInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns, positive)
	warn(maxOpen.Warnings)
	maxIdle := config.LoadEnvInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns, positive)
	warn(maxIdle.Warnings)
	lifetime := config.LoadEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime, config.ValidatePositiveDuration)
	warn(lifetime.Warnings)
	idle := config.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime, config.ValidatePositiveDuration)
	warn(idle.Warnings)

	return ConnectionConfig{
		MaxOpenConns:    maxOpen.Value,
		MaxIdleConns:    maxIdle.Value,
		ConnMaxLifetime: lifetime.Value,
		ConnMaxIdleTime: idle.Value,
	}
}

// Open opens a pgx-backed pool for dsn, applies cfg and verifies the
// connection with a ping bounded by five seconds.
func Open(ctx context.Context, dsn string, cfg ConnectionConfig, logger *slog.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open database: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// ReportStats publishes the pool statistics of db to the connection gauges.
func ReportStats(db *sql.DB) {
	st := db.Stats()
	metrics.UpdateDBConnectionStats(st.InUse, st.Idle)
}
