// Package memory provides in-memory store implementations. Job state is
// process-lifetime by contract: nothing survives a restart and nothing
// is evicted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lmvianna/oscar-crawler/internal/clock/system"
	"github.com/lmvianna/oscar-crawler/internal/crawler"
)

// JobStore is the in-memory job tracker. A single mutex guards the map;
// contention is per-id and low-frequency.
type JobStore struct {
	mu    sync.RWMutex
	clock crawler.Clock
	jobs  map[string]crawler.Job
}

// NewJobStore constructs a JobStore stamping updates with the system
// clock.
func NewJobStore() *JobStore {
	return NewJobStoreWithClock(system.New())
}

// NewJobStoreWithClock constructs a JobStore with an injected clock.
func NewJobStoreWithClock(clock crawler.Clock) *JobStore {
	return &JobStore{
		clock: clock,
		jobs:  make(map[string]crawler.Job),
	}
}

// CreateJob stores a new job. IDs are never reassigned, so a duplicate
// create is a caller bug.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches the current snapshot regardless of status.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	return snapshot(job), nil
}

// UpdateJob replaces the stored job atomically, stamping updated_at.
// Transitions out of a terminal state and transitions that move the
// lifecycle backwards are rejected.
func (s *JobStore) UpdateJob(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	update crawler.JobUpdate,
) (crawler.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return crawler.Job{}, fmt.Errorf("job %s is %s: %w", jobID, job.Status, crawler.ErrJobFinished)
	}
	if statusRank(status) < statusRank(job.Status) {
		return crawler.Job{}, fmt.Errorf("job %s cannot move %s -> %s", jobID, job.Status, status)
	}

	job.Status = status
	job.UpdatedAt = s.stamp(job.UpdatedAt)
	job.TotalFilms = update.TotalFilms
	job.DataFile = optional(update.DataFile)
	job.ErrorText = optional(update.ErrorText)
	job.Films = cloneFilms(update.Films)

	s.jobs[jobID] = job
	return snapshot(job), nil
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (s *JobStore) ListJobs(_ context.Context, status *crawler.JobStatus, limit, offset int) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, snapshot(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})

	if offset >= len(jobs) {
		return []crawler.Job{}, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// stamp returns the clock's now, clamped so updated_at never moves
// backwards under clock coarseness.
func (s *JobStore) stamp(prev time.Time) time.Time {
	now := s.clock.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// statusRank orders the lifecycle so transitions only move forward.
func statusRank(status crawler.JobStatus) int {
	switch status {
	case crawler.JobStatusPending:
		return 0
	case crawler.JobStatusRunning:
		return 1
	default:
		return 2
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	v := s
	return &v
}

func cloneFilms(films []crawler.Film) []crawler.Film {
	if films == nil {
		return nil
	}
	out := make([]crawler.Film, len(films))
	copy(out, films)
	return out
}

// snapshot copies the job so callers cannot mutate stored state.
func snapshot(job crawler.Job) crawler.Job {
	job.Films = cloneFilms(job.Films)
	return job
}
