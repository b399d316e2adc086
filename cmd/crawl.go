package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/collector"
	"github.com/lmvianna/oscar-crawler/internal/config"
	"github.com/lmvianna/oscar-crawler/internal/crawler"
	ajaxfetcher "github.com/lmvianna/oscar-crawler/internal/fetcher/ajax"
	headlessfetcher "github.com/lmvianna/oscar-crawler/internal/fetcher/headless"
	"github.com/lmvianna/oscar-crawler/internal/logging"
	localstorage "github.com/lmvianna/oscar-crawler/internal/storage/local"
)

func newCrawlCmd() *cobra.Command {
	var (
		modeFlag  string
		yearsFlag []int
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a single crawl and write the result file",
		Long: `Performs one crawl synchronously. Direct mode hits the ajax endpoint
for the requested years (or the configured default range). Browser mode
drives a headless Chrome session per year; without --years it discovers
the available years from the page first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			mode, err := crawler.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Storage.BaseDir
			}
			return runCrawl(cmd, cfg, logger, mode, yearsFlag, outDir)
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", string(crawler.ModeDirect), "crawl strategy: direct or browser")
	cmd.Flags().IntSliceVar(&yearsFlag, "years", nil, "years to collect (default: configured range, or discovery in browser mode)")
	cmd.Flags().StringVar(&outDir, "output", "", "directory for the result file (default: storage.base_dir)")
	return cmd
}

func runCrawl(
	cmd *cobra.Command,
	cfg config.Config,
	logger *zap.Logger,
	mode crawler.CrawlMode,
	years []int,
	outDir string,
) error {
	direct := ajaxfetcher.New(ajaxfetcher.Config{
		BaseURL:     cfg.Crawler.BaseURL,
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: cfg.FetchBackoff(),
	}, logger.Named("ajax"))

	headlessCfg := headlessfetcher.Config{
		BaseURL:        cfg.Crawler.BaseURL,
		UserAgent:      cfg.Crawler.UserAgent,
		WaitTimeout:    cfg.HeadlessWaitTimeout(),
		SessionTimeout: cfg.HeadlessSessionTimeout(),
		MaxParallel:    cfg.Headless.MaxParallel,
	}
	browser, err := headlessfetcher.New(headlessCfg, logger.Named("headless"))
	if err != nil {
		return fmt.Errorf("init headless fetcher: %w", err)
	}
	defer browser.Close()
	discoverer := headlessfetcher.NewDiscoverer(headlessCfg, logger.Named("discovery"))

	runner := collector.New(direct, browser, discoverer, cfg.DefaultYears(), nil, logger.Named("collector"))

	films, err := runner.Run(cmd.Context(), mode, years)
	if err != nil {
		var total *crawler.AllYearsFailedError
		if errors.As(err, &total) {
			return fmt.Errorf("crawl produced no data: %w", err)
		}
		return fmt.Errorf("crawl: %w", err)
	}

	data, err := json.MarshalIndent(films, "", "  ")
	if err != nil {
		return fmt.Errorf("encode films: %w", err)
	}
	store, err := localstorage.New(localstorage.Config{BaseDir: outDir})
	if err != nil {
		return fmt.Errorf("init output store: %w", err)
	}
	path, err := store.PutObject(cmd.Context(), fmt.Sprintf("oscar_%s_cli.json", mode), cfg.Storage.ContentType, data)
	if err != nil {
		return fmt.Errorf("write result file: %w", err)
	}

	logger.Info("crawl finished",
		zap.String("mode", string(mode)),
		zap.Int("films", len(films)),
		zap.String("data_file", path),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] collected %d films -> %s\n", mode, len(films), path)
	return nil
}
