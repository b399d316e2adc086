package headless

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
)

// yearLinksExpr enumerates the year selector anchors with their active
// marker.
const yearLinksExpr = `Array.from(document.querySelectorAll('a.year-link')).map(function(a) {
	return {id: a.id, active: a.classList.contains('active')};
})`

type yearLink struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Discoverer enumerates the available years in a single browser
// session and eagerly scrapes the initially active one.
type Discoverer struct {
	cfg    Config
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer. Each Discover call owns a full
// browser lifecycle, torn down on every exit path.
func NewDiscoverer(cfg Config, logger *zap.Logger) *Discoverer {
	cfg.applyDefaults()
	return &Discoverer{cfg: cfg, logger: logger}
}

// Discover loads the source page once, collects all year links,
// identifies the active year (first discovered when none is marked)
// and scrapes its table. The active marker alone does not trigger the
// data load, so the link is clicked explicitly before scraping.
func (d *Discoverer) Discover(ctx context.Context) (crawler.Discovery, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, d.cfg.SessionTimeout)
	defer cancelRun()

	var docStatus atomic.Int64
	watchDocumentStatus(browserCtx, &docStatus)

	var links []yearLink
	err := chromedp.Run(runCtx,
		networkSetup(d.cfg),
		chromedp.Navigate(d.cfg.BaseURL),
		pollFor(`document.querySelectorAll('a.year-link').length > 0`, d.cfg.WaitTimeout),
		chromedp.Evaluate(yearLinksExpr, &links),
	)
	if err != nil {
		if status := docStatus.Load(); status >= 400 {
			return crawler.Discovery{}, &crawler.DiscoveryError{
				Reason: fmt.Sprintf("source page returned status %d", status),
				Err:    err,
			}
		}
		if errors.Is(err, chromedp.ErrPollingTimeout) {
			return crawler.Discovery{}, &crawler.DiscoveryError{Reason: "no year links within wait", Err: err}
		}
		return crawler.Discovery{}, fmt.Errorf("discovery navigate: %w", err)
	}

	years, activeYear, err := resolveYears(links)
	if err != nil {
		return crawler.Discovery{}, err
	}
	d.logger.Info("years discovered",
		zap.Ints("years", years),
		zap.Int("active_year", activeYear),
	)

	start := time.Now()
	var rows []tableRow
	err = chromedp.Run(runCtx,
		chromedp.Click(yearSelector(activeYear), chromedp.ByQuery),
		scrapeTable(d.cfg.WaitTimeout, &rows),
	)
	if err != nil {
		return crawler.Discovery{}, fmt.Errorf("discovery scrape year %d: %w", activeYear, err)
	}

	films, err := filmsFromRows(rows, activeYear)
	if err != nil {
		return crawler.Discovery{}, err
	}
	d.logger.Debug("active year scraped",
		zap.Int("year", activeYear),
		zap.Int("films", len(films)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return crawler.Discovery{
		Years:      years,
		ActiveYear: activeYear,
		Films:      films,
	}, nil
}

// resolveYears parses the numeric link ids and picks the active year,
// defaulting to the first discovered when none carries the marker.
// Non-numeric ids are skipped rather than failing discovery.
func resolveYears(links []yearLink) ([]int, int, error) {
	years := make([]int, 0, len(links))
	activeYear := 0
	for _, link := range links {
		year, err := strconv.Atoi(link.ID)
		if err != nil {
			continue
		}
		years = append(years, year)
		if link.Active && activeYear == 0 {
			activeYear = year
		}
	}
	if len(years) == 0 {
		return nil, 0, &crawler.DiscoveryError{Reason: "no usable year links found"}
	}
	if activeYear == 0 {
		activeYear = years[0]
	}
	sort.Ints(years)
	return years, activeYear, nil
}
