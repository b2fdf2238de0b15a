package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"rsd-scraper/internal/pkg/config"

	"gopkg.in/yaml.v3"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

// MaxJobLimit is the largest batch size accepted from any source.
const MaxJobLimit = 1000

// ScraperConfig holds everything the scraper command reads from its
// environment. Tunables are loaded fail-open: an invalid value is replaced by
// its default, logged and counted in scraper_config_* metrics. Connection
// settings and the jobs file fail closed.
type ScraperConfig struct {
	// StoreBackend is one of postgrest, postgres or memory.
	StoreBackend string
	PostgRESTURL string
	DatabaseURL  string
	// JWTSecret signs admin tokens for PostgREST. StoreToken, when set, is
	// sent as is instead.
	JWTSecret  string
	StoreToken string

	// MaxConcurrent caps simultaneous tasks per batch. Range: 1-100.
	MaxConcurrent int
	// DefaultLimit is the batch size when none is given. Range: 1-1000.
	DefaultLimit int
	// BatchTimeout bounds one batch. Range: 1m-4h.
	BatchTimeout time.Duration
	// HTTPTimeout bounds one provider or store request. Range: 1s-5m.
	HTTPTimeout time.Duration

	CronSchedule string
	Timezone     string
	HealthPort   int
	MetricsPort  int

	GitHubToken    string
	GitLabToken    string
	LibrariesIOKey string
	ContactEmail   string

	// JobsFile is an optional YAML file with per-job overrides.
	JobsFile string
	Jobs     map[string]JobSettings
}

// JobSettings overrides the defaults of one job.
type JobSettings struct {
	Limit    int    `yaml:"limit"`
	Schedule string `yaml:"schedule"`
	Enabled  *bool  `yaml:"enabled"`
}

type jobsFile struct {
	Jobs map[string]JobSettings `yaml:"jobs"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() ScraperConfig {
	return ScraperConfig{
		StoreBackend:  BackendPostgREST,
		MaxConcurrent: 10,
		DefaultLimit:  10,
		BatchTimeout:  30 * time.Minute,
		HTTPTimeout:   30 * time.Second,
		CronSchedule:  "*/10 * * * *",
		Timezone:      "UTC",
		HealthPort:    9091,
		MetricsPort:   9090,
	}
}

// Validate checks every field and returns all problems at once.
func (c *ScraperConfig) Validate() error {
	var errs []error

	if err := config.ValidateOneOf(BackendPostgREST, BackendPostgres, BackendMemory)(c.StoreBackend); err != nil {
		errs = append(errs, fmt.Errorf("store backend: %w", err))
	}
	switch c.StoreBackend {
	case BackendPostgREST:
		if err := config.ValidateHTTPURL(c.PostgRESTURL); err != nil {
			errs = append(errs, fmt.Errorf("POSTGREST_URL: %w", err))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL: required for the postgres backend"))
		}
	}
	if err := config.ValidateIntRange(c.MaxConcurrent, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("max concurrent: %w", err))
	}
	if err := config.ValidateIntRange(c.DefaultLimit, 1, MaxJobLimit); err != nil {
		errs = append(errs, fmt.Errorf("default limit: %w", err))
	}
	if err := config.ValidateDuration(c.BatchTimeout, time.Minute, 4*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("batch timeout: %w", err))
	}
	if err := config.ValidateDuration(c.HTTPTimeout, time.Second, 5*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("http timeout: %w", err))
	}
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	for name, js := range c.Jobs {
		if err := js.validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s JobSettings) validate() error {
	if s.Limit != 0 {
		if err := config.ValidateIntRange(s.Limit, 1, MaxJobLimit); err != nil {
			return fmt.Errorf("limit: %w", err)
		}
	}
	if s.Schedule != "" {
		if err := config.ValidateCronSchedule(s.Schedule); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	return nil
}

// JobLimit returns the batch size of the named job.
func (c *ScraperConfig) JobLimit(name string) int {
	if js, ok := c.Jobs[name]; ok && js.Limit > 0 {
		return js.Limit
	}
	return c.DefaultLimit
}

// JobSchedule returns the cron expression of the named job.
func (c *ScraperConfig) JobSchedule(name string) string {
	if js, ok := c.Jobs[name]; ok && js.Schedule != "" {
		return js.Schedule
	}
	return c.CronSchedule
}

// JobEnabled reports whether the named job runs on schedule. Jobs are enabled
// unless the jobs file disables them.
func (c *ScraperConfig) JobEnabled(name string) bool {
	if js, ok := c.Jobs[name]; ok && js.Enabled != nil {
		return *js.Enabled
	}
	return true
}

// LoadJobsFile reads per-job overrides from a YAML file of the form
//
//	jobs:
//	  github-stats:
//	    limit: 50
//	    schedule: "*/5 * * * *"
//	  cran-reverse-dependencies:
//	    enabled: false
func LoadJobsFile(path string) (map[string]JobSettings, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var f jobsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	if f.Jobs == nil {
		f.Jobs = map[string]JobSettings{}
	}
	return f.Jobs, nil
}

// LoadConfigFromEnv loads the scraper configuration. Out-of-range tunables
// fall back to their defaults. The returned error reports missing connection
// settings or an unreadable or invalid jobs file.
func LoadConfigFromEnv(logger *slog.Logger, metrics *ScraperMetrics) (*ScraperConfig, error) {
	cfg := DefaultConfig()
	l := &envLoader{logger: logger, metrics: metrics}

	cfg.StoreBackend = apply(l, "store_backend", config.LoadEnvWithFallback("STORE_BACKEND", cfg.StoreBackend,
		config.ValidateOneOf(BackendPostgREST, BackendPostgres, BackendMemory)))
	cfg.PostgRESTURL = config.LoadEnvString("POSTGREST_URL", "")
	cfg.DatabaseURL = config.LoadEnvString("DATABASE_URL", "")
	cfg.JWTSecret = config.LoadEnvString("PGRST_JWT_SECRET", "")
	cfg.StoreToken = config.LoadEnvString("STORE_TOKEN", "")

	cfg.MaxConcurrent = apply(l, "max_concurrent", config.LoadEnvInt("SCRAPER_MAX_CONCURRENT", cfg.MaxConcurrent,
		func(v int) error { return config.ValidateIntRange(v, 1, 100) }))
	cfg.DefaultLimit = apply(l, "default_limit", config.LoadEnvInt("SCRAPER_DEFAULT_LIMIT", cfg.DefaultLimit,
		func(v int) error { return config.ValidateIntRange(v, 1, MaxJobLimit) }))
	cfg.BatchTimeout = apply(l, "batch_timeout", config.LoadEnvDuration("SCRAPER_BATCH_TIMEOUT", cfg.BatchTimeout,
		func(d time.Duration) error { return config.ValidateDuration(d, time.Minute, 4*time.Hour) }))
	cfg.HTTPTimeout = apply(l, "http_timeout", config.LoadEnvDuration("SCRAPER_HTTP_TIMEOUT", cfg.HTTPTimeout,
		func(d time.Duration) error { return config.ValidateDuration(d, time.Second, 5*time.Minute) }))

	cfg.CronSchedule = apply(l, "cron_schedule", config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule))
	cfg.Timezone = apply(l, "timezone", config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.HealthPort = apply(l, "health_port", config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort,
		func(v int) error { return config.ValidateIntRange(v, 1024, 65535) }))
	cfg.MetricsPort = apply(l, "metrics_port", config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort,
		func(v int) error { return config.ValidateIntRange(v, 1024, 65535) }))

	cfg.GitHubToken = config.LoadEnvString("API_CREDENTIALS_GITHUB", "")
	cfg.GitLabToken = config.LoadEnvString("API_CREDENTIALS_GITLAB", "")
	cfg.LibrariesIOKey = config.LoadEnvString("LIBRARIES_IO_ACCESS_TOKEN", "")
	cfg.ContactEmail = config.LoadEnvString("CROSSREF_CONTACT_EMAIL", "")

	metrics.SetFallbackActive(l.fallback)
	metrics.RecordLoadTimestamp()

	cfg.JobsFile = config.LoadEnvString("SCRAPER_JOBS_FILE", "")
	if cfg.JobsFile != "" {
		jobs, err := LoadJobsFile(cfg.JobsFile)
		if err != nil {
			return &cfg, err
		}
		cfg.Jobs = jobs
	}

	if err := cfg.Validate(); err != nil {
		return &cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

type envLoader struct {
	logger   *slog.Logger
	metrics  *ScraperMetrics
	fallback bool
}

// apply returns the loaded value, logging and counting a fallback if one was
// applied.
func apply[T any](l *envLoader, field string, r config.ConfigLoadResult[T]) T {
	if r.FallbackApplied {
		l.fallback = true
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field)
		for _, w := range r.Warnings {
			l.logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", w))
		}
	}
	return r.Value
}
