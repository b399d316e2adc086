// Package headless implements the browser-driven strategy and year
// discovery via chromedp.
package headless

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/metrics"
)

const strategyName = "browser"

// Config controls the behavior of the headless subsystem.
type Config struct {
	BaseURL        string
	UserAgent      string
	WaitTimeout    time.Duration
	SessionTimeout time.Duration
	MaxParallel    int
}

func (c *Config) applyDefaults() {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 20 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 60 * time.Second
	}
}

// Fetcher implements crawler.YearFetcher by driving one browser session
// per year. Sessions are never shared: each fetch owns its tab and
// tears it down on every exit path.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless fetcher backed by chromedp. MaxParallel bounds
// the number of concurrently open browser sessions; zero means
// unbounded.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg.applyDefaults()

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions()...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

func allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
}

// Close cancels the allocator context, killing any remaining browsers.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// FetchYear opens a fresh browser session, selects the year link and
// scrapes the populated table.
func (f *Fetcher) FetchYear(ctx context.Context, year int) ([]crawler.Film, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	tabCtx, cancelTab := chromedp.NewContext(f.allocator)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, f.cfg.SessionTimeout)
	defer cancelRun()

	stopForward := forwardCancel(ctx, cancelRun)
	defer stopForward()

	var docStatus atomic.Int64
	watchDocumentStatus(tabCtx, &docStatus)

	start := time.Now()
	var rows []tableRow
	tasks := chromedp.Tasks{
		networkSetup(f.cfg),
		chromedp.Navigate(f.cfg.BaseURL),
		pollFor(yearLinkPresent(year), f.cfg.WaitTimeout),
		chromedp.Click(yearSelector(year), chromedp.ByQuery),
		scrapeTable(f.cfg.WaitTimeout, &rows),
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		metrics.ObserveFetchAttempt(strategyName, "session_error")
		if status := docStatus.Load(); status >= 400 {
			return nil, fmt.Errorf("headless fetch year %d: document status %d: %w", year, status, err)
		}
		return nil, fmt.Errorf("headless fetch year %d: %w", year, err)
	}

	films, err := filmsFromRows(rows, year)
	if err != nil {
		metrics.ObserveFetchAttempt(strategyName, "parse_error")
		return nil, err
	}
	metrics.ObserveFetchAttempt(strategyName, "success")
	f.logger.Debug("headless year scraped",
		zap.Int("year", year),
		zap.Int("films", len(films)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return films, nil
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// forwardCancel propagates cancellation of the caller's context into
// the chromedp task context.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
