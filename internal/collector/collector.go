// Package collector fans per-year fetches out over the selected
// strategy and applies the partial/total failure policy.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/metrics"
	"github.com/lmvianna/oscar-crawler/internal/progress"
)

// Collector dispatches crawl requests to the configured strategies.
type Collector struct {
	direct       crawler.YearFetcher
	browser      crawler.YearFetcher
	discoverer   crawler.Discoverer
	defaultYears []int
	emitter      progress.Emitter
	logger       *zap.Logger
}

// New constructs a Collector. A nil emitter disables progress events.
func New(
	direct crawler.YearFetcher,
	browser crawler.YearFetcher,
	discoverer crawler.Discoverer,
	defaultYears []int,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		direct:       direct,
		browser:      browser,
		discoverer:   discoverer,
		defaultYears: defaultYears,
		emitter:      emitter,
		logger:       logger,
	}
}

// Run executes one crawl. Direct mode collects the given years (or the
// default range) over the ajax strategy. Browser mode with explicit
// years skips discovery; without years it discovers the available
// years, keeps the films already scraped for the active year and
// collects the rest.
func (c *Collector) Run(ctx context.Context, mode crawler.CrawlMode, years []int) ([]crawler.Film, error) {
	switch mode {
	case crawler.ModeDirect:
		if len(years) == 0 {
			years = c.defaultYears
		}
		return c.collect(ctx, years, c.direct, string(crawler.ModeDirect))
	case crawler.ModeBrowser:
		if len(years) > 0 {
			return c.collect(ctx, years, c.browser, string(crawler.ModeBrowser))
		}
		return c.discoverAndCollect(ctx)
	default:
		return nil, fmt.Errorf("unknown crawl mode %q", mode)
	}
}

func (c *Collector) discoverAndCollect(ctx context.Context) ([]crawler.Film, error) {
	discovery, err := c.discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}

	remaining := excludeYear(discovery.Years, discovery.ActiveYear)
	if len(remaining) == 0 {
		return discovery.Films, nil
	}

	films, err := c.collect(ctx, remaining, c.browser, string(crawler.ModeBrowser))
	if err != nil {
		return nil, err
	}
	// The active year was scraped during discovery; prefix it rather
	// than fetching it twice.
	combined := make([]crawler.Film, 0, len(discovery.Films)+len(films))
	combined = append(combined, discovery.Films...)
	combined = append(combined, films...)
	return combined, nil
}

// collect runs one concurrent fetch per year and awaits all outcomes
// without short-circuiting. Successful years are concatenated in
// enumeration order, not completion order. Only total failure is an
// error; per-year failures under partial success are logged and
// counted but not surfaced.
func (c *Collector) collect(
	ctx context.Context,
	years []int,
	fetcher crawler.YearFetcher,
	strategy string,
) ([]crawler.Film, error) {
	type outcome struct {
		films []crawler.Film
		err   error
		dur   time.Duration
	}
	outcomes := make([]outcome, len(years))

	var wg sync.WaitGroup
	for i, year := range years {
		wg.Add(1)
		go func(i, year int) {
			defer wg.Done()
			start := time.Now()
			films, err := fetcher.FetchYear(ctx, year)
			outcomes[i] = outcome{films: films, err: err, dur: time.Since(start)}
		}(i, year)
	}
	wg.Wait()

	var (
		films     []crawler.Film
		failures  []crawler.YearFailure
		succeeded int
	)
	for i, year := range years {
		if err := outcomes[i].err; err != nil {
			failures = append(failures, crawler.YearFailure{Year: year, Err: err})
			metrics.ObserveYearFailure(strategy)
			c.emit(progress.Event{
				TS:       time.Now().UTC(),
				Stage:    progress.StageYearError,
				Strategy: strategy,
				Year:     year,
				Dur:      outcomes[i].dur,
				Note:     crawler.Describe(err),
			})
			c.logger.Warn("year collection failed",
				zap.String("strategy", strategy),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}
		succeeded++
		films = append(films, outcomes[i].films...)
		c.emit(progress.Event{
			TS:       time.Now().UTC(),
			Stage:    progress.StageYearDone,
			Strategy: strategy,
			Year:     year,
			Films:    int64(len(outcomes[i].films)),
			Dur:      outcomes[i].dur,
		})
	}

	if len(failures) > 0 && succeeded == 0 {
		return nil, &crawler.AllYearsFailedError{Failures: failures}
	}
	metrics.AddFilmsCollected(strategy, len(films))
	return films, nil
}

func (c *Collector) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func excludeYear(years []int, skip int) []int {
	out := make([]int, 0, len(years))
	for _, y := range years {
		if y != skip {
			out = append(out, y)
		}
	}
	return out
}
