package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmvianna/oscar-crawler/internal/app"
	"github.com/lmvianna/oscar-crawler/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl HTTP service",
		Long: `Starts the HTTP API with the dispatcher and worker pool. Crawl jobs
are submitted via POST /crawl/oscar and tracked via GET /results/{job_id}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return application.Run(cmd.Context())
		},
	}
}
