package crawler

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values held in the job store. Transitions are one-way:
// pending -> running -> completed | failed.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CrawlMode selects the collection strategy for a job.
type CrawlMode string

// Supported crawl modes.
const (
	ModeDirect  CrawlMode = "direct"
	ModeBrowser CrawlMode = "browser"
)

// ParseMode validates a mode string supplied by a client.
func ParseMode(s string) (CrawlMode, error) {
	switch CrawlMode(s) {
	case ModeDirect, ModeBrowser:
		return CrawlMode(s), nil
	default:
		return "", fmt.Errorf("unknown crawl mode %q", s)
	}
}

// Job is the snapshot persisted for each submitted crawl request.
// DataFile, ErrorText and Films marshal to null until populated, which
// keeps the wire shape stable across the lifecycle.
type Job struct {
	ID         string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Mode       CrawlMode `json:"mode"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	TotalFilms int       `json:"total_films"`
	DataFile   *string   `json:"data_file"`
	ErrorText  *string   `json:"error"`
	Films      []Film    `json:"films"`
}

// JobUpdate carries the fields attached to a status transition.
type JobUpdate struct {
	TotalFilms int
	DataFile   string
	ErrorText  string
	Films      []Film
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Mode      CrawlMode
	Years     []int
	Submitted int64
}
