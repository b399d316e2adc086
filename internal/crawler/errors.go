package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrJobNotFound is returned when a job id is not known to the store.
var ErrJobNotFound = errors.New("job not found")

// ErrJobFinished is returned on a transition attempt out of a terminal
// state.
var ErrJobFinished = errors.New("job already finished")

// TransientError is a retryable single-attempt fetch failure: a
// connection error, a timeout, or a non-2xx status.
type TransientError struct {
	Year    int
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("year %d attempt %d: %v", e.Year, e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed payload or table cell. It is never
// retried.
type ParseError struct {
	Year   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("year %d: %s: %v", e.Year, e.Reason, e.Err)
	}
	return fmt.Sprintf("year %d: %s", e.Year, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DiscoveryError reports that no year links appeared within the
// bounded wait.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("discovery: %s", e.Reason)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// YearFailure pairs a failed year with its cause.
type YearFailure struct {
	Year int
	Err  error
}

// AllYearsFailedError is raised by the coordinator only when every
// year in a collect call failed. It names every year and cause.
type AllYearsFailedError struct {
	Failures []YearFailure
}

func (e *AllYearsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("year=%d: %v", f.Year, f.Err))
	}
	return "crawl failed for all years: " + strings.Join(parts, "; ")
}

// Describe renders an error with its dynamic type, mirroring what the
// job record stores. Chromedp and CDP errors frequently carry an empty
// message, so the type name is part of the description.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T: %v", err, err)
}
