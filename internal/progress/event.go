// Package progress defines the event structures emitted by the crawl pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart  Stage = "JOB_START"
	StageJobDone   Stage = "JOB_DONE"
	StageJobError  Stage = "JOB_ERROR"
	StageYearDone  Stage = "YEAR_DONE"
	StageYearError Stage = "YEAR_ERROR"
)

// Event captures a single milestone of crawl progress. Job stages carry
// the job ID; year stages are scoped to a strategy and ceremony year and
// may be emitted before a job ID is known to the collecting layer.
type Event struct {
	// JobID identifies the job run. Required for job stages.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or per-year milestone occurred.
	Stage Stage
	// Strategy labels the collection strategy (direct or browser).
	Strategy string
	// Year is the ceremony year for year-scoped events.
	Year int
	// Films carries the number of films involved in the milestone.
	Films int64
	// Dur captures execution latency for year fetches and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
		if e.JobID == "" {
			return errors.New("job stages require a job id")
		}
	case StageYearDone, StageYearError:
		if e.Strategy == "" {
			return errors.New("year stages require a strategy")
		}
		if e.Year <= 0 {
			return errors.New("year stages require a year")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Films < 0 {
		return errors.New("film count must be >= 0")
	}
	return nil
}
