package crawler

import (
	"context"
	"time"
)

// YearFetcher collects the films of a single year. Both strategies
// (direct ajax and browser-driven) satisfy it.
type YearFetcher interface {
	FetchYear(ctx context.Context, year int) ([]Film, error)
}

// Discovery is the result of enumerating the source page once.
type Discovery struct {
	Years      []int
	ActiveYear int
	Films      []Film
}

// Discoverer drives a browser session to find the available years and
// eagerly scrape the initially active one.
type Discoverer interface {
	Discover(ctx context.Context) (Discovery, error)
}

// JobStore tracks job lifecycle state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, jobID string, status JobStatus, update JobUpdate) (Job, error)
}

// JobLister enumerates stored jobs for operational queries. Stores that
// support listing implement it alongside JobStore.
type JobLister interface {
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
}

// BlobStore writes result artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// FilmStore archives the films of a completed job durably. Optional;
// a nil store disables archiving.
type FilmStore interface {
	StoreFilms(ctx context.Context, jobID string, films []Film) error
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for result integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
