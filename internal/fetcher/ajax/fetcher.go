// Package ajax implements the direct-fetch strategy against the
// source's ajax endpoint using the Colly collector.
package ajax

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/metrics"
)

const strategyName = "direct"

// Config controls collector and retry behavior.
type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Fetcher implements crawler.YearFetcher over the ajax endpoint. Each
// year is one GET with a fixed timeout; transient failures are retried
// with linear backoff, parse failures are not.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	c := colly.NewCollector(colly.Async(false))
	// The same year URL is requested again on retry and on subsequent
	// jobs; colly's visited cache would reject those as duplicates.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
		sleep:         sleepContext,
	}
}

// FetchYear collects one year's films, retrying transient failures up
// to the attempt budget. The sleep between attempts is backoff base
// multiplied by the attempt number, so attempts 1 and 2 sleep and the
// final failure propagates immediately.
func (f *Fetcher) FetchYear(ctx context.Context, year int) ([]crawler.Film, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		films, err := f.fetchOnce(ctx, year)
		if err == nil {
			metrics.ObserveFetchAttempt(strategyName, "success")
			return films, nil
		}

		var parseErr *crawler.ParseError
		if errors.As(err, &parseErr) {
			metrics.ObserveFetchAttempt(strategyName, "parse_error")
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch year %d: %w", year, ctx.Err())
		}

		metrics.ObserveFetchAttempt(strategyName, "transient")
		lastErr = &crawler.TransientError{Year: year, Attempt: attempt, Err: err}
		f.logger.Warn("ajax fetch attempt failed",
			zap.Int("year", year),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < f.cfg.MaxAttempts {
			if sleepErr := f.sleep(ctx, time.Duration(attempt)*f.cfg.BackoffBase); sleepErr != nil {
				return nil, fmt.Errorf("fetch year %d: %w", year, sleepErr)
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, year int) ([]crawler.Film, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, f.yearURL(year), &fetchErr); err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return crawler.ParseFilms(body, year)
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ajax fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ajax visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("ajax response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) yearURL(year int) string {
	params := url.Values{}
	params.Set("ajax", "true")
	params.Set("year", strconv.Itoa(year))
	return f.cfg.BaseURL + "?" + params.Encode()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
