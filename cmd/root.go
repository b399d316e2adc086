// Package cmd defines the CLI commands for the oscar-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oscar-crawler",
		Short: "Crawls Oscar film listings rendered with ajax or JavaScript",
		Long: `oscar-crawler collects per-year Oscar film tables from a site that
renders them either through an ajax endpoint or client-side JavaScript.
It can run as an HTTP service with asynchronous job tracking, or
perform a single crawl from the command line.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
