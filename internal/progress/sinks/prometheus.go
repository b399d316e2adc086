package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lmvianna/oscar-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns
// collectors for job lifecycle counts and per-strategy year outcomes.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	yearsCollected *prometheus.CounterVec
	yearFailures   *prometheus.CounterVec
	filmsCollected *prometheus.CounterVec
	yearDuration   *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oscar_progress_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oscar_progress_jobs_completed_total",
			Help: "Total jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oscar_progress_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oscar_progress_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		yearsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oscar_progress_years_collected_total",
			Help: "Year fetch completions partitioned by strategy.",
		}, []string{"strategy"}),
		yearFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oscar_progress_year_failures_total",
			Help: "Year fetch failures partitioned by strategy.",
		}, []string{"strategy"}),
		filmsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oscar_progress_films_total",
			Help: "Films collected partitioned by strategy.",
		}, []string{"strategy"}),
		yearDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oscar_progress_year_duration_seconds",
			Help:    "Year fetch duration partitioned by strategy.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"strategy"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.yearsCollected,
		s.yearFailures,
		s.filmsCollected,
		s.yearDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It
// is safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
			s.handleJobEvent(evt)
		case progress.StageYearDone, progress.StageYearError:
			s.handleYearEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageJobStart && s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleYearEvent(evt progress.Event) {
	strategy := evt.Strategy
	if strategy == "" {
		strategy = "unknown"
	}
	switch evt.Stage {
	case progress.StageYearDone:
		s.yearsCollected.WithLabelValues(strategy).Inc()
		if evt.Films > 0 {
			s.filmsCollected.WithLabelValues(strategy).Add(float64(evt.Films))
		}
	case progress.StageYearError:
		s.yearFailures.WithLabelValues(strategy).Inc()
	}
	if evt.Dur > 0 {
		s.yearDuration.WithLabelValues(strategy).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
