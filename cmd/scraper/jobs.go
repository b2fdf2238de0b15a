package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs available with the current credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			jobs := buildJobs(cfg, newHTTPClient(cfg.HTTPTimeout), c.logger)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "JOB\tTABLE\tFILTER\tSCRAPED AT\tLIMIT\tSCHEDULE\tENABLED")
			for _, j := range jobs {
				filters := make([]string, 0, len(j.Filters))
				for _, f := range j.Filters {
					filters = append(filters, fmt.Sprintf("%s=%s", f.Column, strings.TrimSuffix(string(f.Op)+"."+f.Value, ".")))
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%t\n",
					j.Name, j.Collection.Table, strings.Join(filters, ","), j.Field.ScrapedAtColumn,
					cfg.JobLimit(j.Name), cfg.JobSchedule(j.Name), cfg.JobEnabled(j.Name))
			}
			return tw.Flush()
		},
	}
}
