package main

import (
	"log/slog"
	"os"

	"rsd-scraper/internal/observability/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// cli carries what every subcommand shares.
type cli struct {
	logger *slog.Logger
	reg    prometheus.Registerer
}

func newRootCmd(reg prometheus.Registerer) *cobra.Command {
	c := &cli{reg: reg}

	root := &cobra.Command{
		Use:               "scraper",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Refresh externally sourced data of the Research Software Directory",
		Long: `scraper selects the entities whose data was scraped longest ago, fetches
fresh data from the external provider of a job and writes it back together
with a new scraped-at timestamp. Failures are written to the error log.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("log-format")
			if err != nil {
				return err
			}
			if c.logger, err = logging.New(os.Stdout, format); err != nil {
				return err
			}
			slog.SetDefault(c.logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("log-format", "json", "Log output format (json or text)")

	root.AddCommand(c.newRunCmd())
	root.AddCommand(c.newJobsCmd())
	root.AddCommand(c.newScheduleCmd())
	return root
}
