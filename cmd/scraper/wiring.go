package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rsd-scraper/internal/infra/adapter/persistence/memory"
	"rsd-scraper/internal/infra/adapter/persistence/postgres"
	"rsd-scraper/internal/infra/adapter/persistence/postgrest"
	"rsd-scraper/internal/infra/auth"
	"rsd-scraper/internal/infra/db"
	"rsd-scraper/internal/infra/scraper"
	"rsd-scraper/internal/infra/worker"
	"rsd-scraper/internal/observability/tracing"
	"rsd-scraper/internal/repository"
	"rsd-scraper/internal/resilience/retry"
	"rsd-scraper/internal/usecase/scrape"
)

// stores bundles the repositories of one backend.
type stores struct {
	targets  repository.TargetRepository
	mentions repository.MentionRepository
	errs     repository.ErrorRepository
	close    func()
}

// app is a fully wired scraper.
type app struct {
	cfg     *worker.ScraperConfig
	metrics *worker.ScraperMetrics
	service *scrape.Service
	close   func()
}

// loadConfig loads the environment configuration. Errors are configuration
// failures and end the process with exit code 1.
func (c *cli) loadConfig() (*worker.ScraperConfig, *worker.ScraperMetrics, error) {
	m := worker.NewScraperMetrics(c.reg)
	cfg, err := worker.LoadConfigFromEnv(c.logger, m)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	c.logger.Info("scraper configuration loaded",
		slog.String("store_backend", cfg.StoreBackend),
		slog.Int("max_concurrent", cfg.MaxConcurrent),
		slog.Int("default_limit", cfg.DefaultLimit),
		slog.Duration("batch_timeout", cfg.BatchTimeout),
		slog.Duration("http_timeout", cfg.HTTPTimeout),
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("configured_jobs", len(cfg.Jobs)))
	return cfg, m, nil
}

// newApp opens the configured store and registers every available job.
func (c *cli) newApp(ctx context.Context) (*app, error) {
	cfg, m, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	client := newHTTPClient(cfg.HTTPTimeout)
	st, err := openStores(ctx, cfg, client, c.logger)
	if err != nil {
		return nil, err
	}

	svc, err := scrape.NewService(st.targets, st.mentions, st.errs, buildJobs(cfg, client, c.logger), scrape.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		DefaultLimit:  cfg.DefaultLimit,
		StoreRetry:    retry.StoreReadConfig(),
		Now:           time.Now,
	})
	if err != nil {
		st.close()
		return nil, err
	}
	return &app{cfg: cfg, metrics: m, service: svc, close: st.close}, nil
}

func buildJobs(cfg *worker.ScraperConfig, client *http.Client, logger *slog.Logger) []*scrape.Job {
	return scraper.NewScraperFactory(client, scraper.Config{
		GitHubToken:    cfg.GitHubToken,
		GitLabToken:    cfg.GitLabToken,
		LibrariesIOKey: cfg.LibrariesIOKey,
		ContactEmail:   cfg.ContactEmail,
	}, logger).CreateJobs()
}

func openStores(ctx context.Context, cfg *worker.ScraperConfig, client *http.Client, logger *slog.Logger) (stores, error) {
	switch cfg.StoreBackend {
	case worker.BackendPostgREST:
		s := postgrest.NewStore(cfg.PostgRESTURL, client, storeTokens(cfg, logger))
		logger.Info("using PostgREST store", slog.String("url", cfg.PostgRESTURL))
		return stores{targets: s, mentions: s, errs: s, close: func() {}}, nil

	case worker.BackendPostgres:
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.ConnectionConfigFromEnv(logger), logger)
		if err != nil {
			return stores{}, err
		}
		s := postgres.NewStore(sqlDB)
		logger.Info("using postgres store")
		return stores{targets: s, mentions: s, errs: s, close: func() {
			db.ReportStats(sqlDB)
			if err := sqlDB.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("error", err))
			}
		}}, nil

	case worker.BackendMemory:
		s := memory.New()
		logger.Warn("using in-memory store, nothing is persisted")
		return stores{targets: s, mentions: s, errs: s, close: func() {}}, nil
	}
	return stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// storeTokens prefers a pre-issued token over minting admin tokens.
func storeTokens(cfg *worker.ScraperConfig, logger *slog.Logger) auth.TokenSource {
	if cfg.StoreToken != "" {
		return auth.StaticToken(cfg.StoreToken)
	}
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewAdminJWT(cfg.JWTSecret, time.Hour)
		if err == nil {
			return tokens
		}
		logger.Warn("cannot mint admin tokens", slog.Any("error", err))
	}
	logger.Warn("no store credentials configured, sending unauthenticated requests")
	return nil
}

// newHTTPClient creates the client shared by providers and the PostgREST
// store. TLS 1.2+ is enforced and every request gets a client span.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: tracing.NewTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		}),
	}
}
