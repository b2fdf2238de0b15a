package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rsd-scraper/internal/infra/worker"
	"rsd-scraper/internal/observability/logging"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func (c *cli) newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run every enabled job on its cron schedule",
		Long: `Schedule runs as a daemon. Each enabled job gets a cron entry using its
schedule from the jobs file or CRON_SCHEDULE. A run still in progress when
its next tick arrives causes that tick to be skipped. Health checks are served
on WORKER_HEALTH_PORT and Prometheus metrics on METRICS_PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.schedule(ctx)
		},
	}
}

func (c *cli) schedule(ctx context.Context) error {
	a, err := c.newApp(ctx)
	if err != nil {
		c.logger.Error("scraper setup failed", slog.String("error", logging.SanitizeError(err)))
		return err
	}
	defer a.close()

	loc, err := time.LoadLocation(a.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	health := worker.NewHealthServer(fmt.Sprintf(":%d", a.cfg.HealthPort), c.logger)
	go func() {
		if err := health.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	startMetricsServer(ctx, c.logger, a.cfg.MetricsPort)

	cl := cronLogger{logger: c.logger}
	sched := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, job := range a.service.Jobs() {
		name := job.Name
		if !a.cfg.JobEnabled(name) {
			c.logger.Info("job disabled", slog.String("job", name))
			continue
		}
		expr := a.cfg.JobSchedule(name)
		if _, err := sched.AddFunc(expr, func() { c.runScheduled(ctx, a, health, name) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		c.logger.Info("job scheduled", slog.String("job", name), slog.String("schedule", expr))
	}

	sched.Start()
	health.SetReady(true)
	c.logger.Info("scheduler started", slog.String("timezone", a.cfg.Timezone))

	<-ctx.Done()
	health.SetReady(false)
	c.logger.Info("scheduler stopping, waiting for running batches")
	<-sched.Stop().Done()
	c.logger.Info("scheduler stopped")
	return nil
}

// runScheduled runs one scheduled batch and reports it to metrics and the
// health server. A failed batch is logged and retried on the next tick.
func (c *cli) runScheduled(ctx context.Context, a *app, health *worker.HealthServer, job string) {
	if ctx.Err() != nil {
		a.metrics.RecordRun(job, "skipped")
		return
	}
	start := time.Now()
	status := worker.JobStatus{Job: job, LastRun: start}

	stats, err := c.runBatch(ctx, a, job, a.cfg.JobLimit(job))
	a.metrics.RecordRunDuration(job, time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("scheduled batch failed",
			slog.String("job", job),
			slog.String("error", logging.SanitizeError(err)))
		a.metrics.RecordRun(job, "failure")
		status.Error = logging.SanitizeError(err)
		health.RecordRun(status)
		return
	}

	a.metrics.RecordRun(job, "success")
	a.metrics.RecordTargetsProcessed(job, stats.Completed())
	a.metrics.RecordLastSuccess(job)
	status.LastSuccess = time.Now()
	status.Selected = stats.Selected
	status.Completed = stats.Completed()
	status.Failed = stats.Failed + stats.WriteFailed
	health.RecordRun(status)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
