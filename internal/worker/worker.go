// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/metrics"
	"github.com/lmvianna/oscar-crawler/internal/progress"
)

// Runner executes one crawl and returns the collected films.
type Runner interface {
	Run(ctx context.Context, mode crawler.CrawlMode, years []int) ([]crawler.Film, error)
}

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Worker consumes queue items and executes the crawl pipeline.
type Worker struct {
	queue     crawler.Queue
	jobStore  crawler.JobStore
	blobStore crawler.BlobStore
	publisher crawler.Publisher
	filmStore crawler.FilmStore
	hasher    crawler.Hasher
	clock     crawler.Clock
	runner    Runner
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. filmStore, publisher and emitter may be nil,
// which disables archiving, event publishing and progress reporting
// respectively.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	filmStore crawler.FilmStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	runner Runner,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		blobStore: blobStore,
		publisher: publisher,
		filmStore: filmStore,
		hasher:    hasher,
		clock:     clock,
		runner:    runner,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.String("mode", string(item.Mode)),
		)
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if _, err := w.jobStore.UpdateJob(ctx, item.JobID, crawler.JobStatusRunning, crawler.JobUpdate{}); err != nil {
		w.logger.Error("mark job running failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	started := w.clock.Now()
	w.emit(progress.Event{
		JobID:    item.JobID,
		TS:       started,
		Stage:    progress.StageJobStart,
		Strategy: string(item.Mode),
	})

	films, err := w.runner.Run(ctx, item.Mode, item.Years)
	if err != nil {
		w.failJob(ctx, item, started, err)
		return
	}

	dataFile, hash, err := w.persistResult(ctx, item.JobID, films)
	if err != nil {
		w.failJob(ctx, item, started, err)
		return
	}

	w.archiveFilms(ctx, item.JobID, films)

	job, err := w.jobStore.UpdateJob(ctx, item.JobID, crawler.JobStatusCompleted, crawler.JobUpdate{
		TotalFilms: len(films),
		DataFile:   dataFile,
		Films:      films,
	})
	if err != nil {
		w.logger.Error("mark job completed failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	metrics.ObserveJob(string(item.Mode), string(crawler.JobStatusCompleted))
	w.publishEvent(ctx, job, dataFile, hash)
	w.emit(progress.Event{
		JobID:    item.JobID,
		TS:       w.clock.Now(),
		Stage:    progress.StageJobDone,
		Strategy: string(item.Mode),
		Films:    int64(len(films)),
		Dur:      w.clock.Now().Sub(started),
	})
	w.logger.Info("job completed",
		zap.String("job_id", item.JobID),
		zap.String("mode", string(item.Mode)),
		zap.Int("total_films", len(films)),
		zap.String("data_file", dataFile),
		zap.Duration("elapsed", w.clock.Now().Sub(started)),
	)
}

func (w *Worker) failJob(ctx context.Context, item crawler.QueueItem, started time.Time, cause error) {
	job, err := w.jobStore.UpdateJob(ctx, item.JobID, crawler.JobStatusFailed, crawler.JobUpdate{
		ErrorText: crawler.Describe(cause),
	})
	if err != nil {
		w.logger.Error("mark job failed failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	metrics.ObserveJob(string(item.Mode), string(crawler.JobStatusFailed))
	w.publishEvent(ctx, job, "", "")
	w.emit(progress.Event{
		JobID:    item.JobID,
		TS:       w.clock.Now(),
		Stage:    progress.StageJobError,
		Strategy: string(item.Mode),
		Dur:      w.clock.Now().Sub(started),
		Note:     crawler.Describe(cause),
	})
	w.logger.Error("job failed",
		zap.String("job_id", item.JobID),
		zap.String("mode", string(item.Mode)),
		zap.Error(cause),
	)
}

// persistResult serializes the films and writes the job's result file.
// The returned hash covers the serialized bytes.
func (w *Worker) persistResult(ctx context.Context, jobID string, films []crawler.Film) (string, string, error) {
	body, err := json.MarshalIndent(films, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal films: %w", err)
	}

	hash, err := w.hasher.Hash(body)
	if err != nil {
		return "", "", fmt.Errorf("hash result: %w", err)
	}

	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(jobID), w.cfg.ContentType, body)
	if err != nil {
		return "", "", fmt.Errorf("put object: %w", err)
	}
	return uri, hash, nil
}

func (w *Worker) buildBlobPath(jobID string) string {
	name := fmt.Sprintf("oscar_%s.json", jobID)
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// archiveFilms is best effort. A failed archive never fails the job.
func (w *Worker) archiveFilms(ctx context.Context, jobID string, films []crawler.Film) {
	if w.filmStore == nil || len(films) == 0 {
		return
	}
	if err := w.filmStore.StoreFilms(ctx, jobID, films); err != nil {
		w.logger.Warn("film archive failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

func (w *Worker) publishEvent(ctx context.Context, job crawler.Job, dataFile, hash string) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"mode":         string(job.Mode),
		"total_films":  job.TotalFilms,
		"data_file":    dataFile,
		"content_hash": hash,
		"timestamp":    w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish job event failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	w.logger.Debug("job event published", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
}
