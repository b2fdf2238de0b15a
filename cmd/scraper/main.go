// Command scraper refreshes the externally sourced data of the Research
// Software Directory: repository statistics, organisation locations, mention
// metadata, citations and package statistics.
package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := newRootCmd(prometheus.DefaultRegisterer).Execute(); err != nil {
		os.Exit(1)
	}
}
