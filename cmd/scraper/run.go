package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/usecase/scrape"

	"github.com/spf13/cobra"
)

func (c *cli) newRunCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one batch of a job",
		Long: `Run selects the stalest entities of a job, refreshes them and exits.

The limit defaults to the job's limit from the jobs file, or
SCRAPER_DEFAULT_LIMIT. The command exits with status 1 only when the
configuration is invalid or the selection cannot be read; failures of
individual entities are recorded in the error log.`,
		Example: "  scraper run github-stats --limit 50",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.newApp(ctx)
			if err != nil {
				c.logger.Error("scraper setup failed", slog.String("error", logging.SanitizeError(err)))
				return err
			}
			defer a.close()

			n := a.cfg.JobLimit(args[0])
			if cmd.Flags().Changed("limit") {
				n = limit
			}
			stats, err := c.runBatch(ctx, a, args[0], n)
			if err != nil {
				c.logger.Error("batch failed",
					slog.String("job", args[0]),
					slog.String("error", logging.SanitizeError(err)))
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of entities to refresh")
	return cmd
}

// runBatch runs one batch bounded by the batch timeout. The service logs the
// batch outcome itself.
func (c *cli) runBatch(ctx context.Context, a *app, job string, limit int) (*scrape.BatchStats, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.BatchTimeout)
	defer cancel()
	return a.service.Run(logging.WithLogger(ctx, c.logger), job, limit)
}

func printStats(w io.Writer, s *scrape.BatchStats) {
	_, _ = fmt.Fprintf(w, "%s: selected=%d updated=%d empty=%d failed=%d write_failed=%d cancelled=%d skipped=%d\n",
		s.Job, s.Selected, s.Updated, s.Empty, s.Failed, s.WriteFailed, s.Cancelled, s.Skipped)
}
