// Package app builds and runs the crawler service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/api"
	"github.com/lmvianna/oscar-crawler/internal/clock/system"
	"github.com/lmvianna/oscar-crawler/internal/collector"
	"github.com/lmvianna/oscar-crawler/internal/config"
	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/dispatcher"
	ajaxfetcher "github.com/lmvianna/oscar-crawler/internal/fetcher/ajax"
	headlessfetcher "github.com/lmvianna/oscar-crawler/internal/fetcher/headless"
	"github.com/lmvianna/oscar-crawler/internal/hash/sha256"
	"github.com/lmvianna/oscar-crawler/internal/id/uuid"
	"github.com/lmvianna/oscar-crawler/internal/logging"
	"github.com/lmvianna/oscar-crawler/internal/progress"
	progresssinks "github.com/lmvianna/oscar-crawler/internal/progress/sinks"
	memorypublisher "github.com/lmvianna/oscar-crawler/internal/publisher/memory"
	gcppublisher "github.com/lmvianna/oscar-crawler/internal/publisher/pubsub"
	queueMemory "github.com/lmvianna/oscar-crawler/internal/queue/memory"
	gcsstorage "github.com/lmvianna/oscar-crawler/internal/storage/gcs"
	localstorage "github.com/lmvianna/oscar-crawler/internal/storage/local"
	memoryStorage "github.com/lmvianna/oscar-crawler/internal/storage/memory"
	pgstore "github.com/lmvianna/oscar-crawler/internal/storage/postgres"
	"github.com/lmvianna/oscar-crawler/internal/worker"
)

// App holds the assembled service and the handles it must release on
// shutdown.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	progressHub  *progress.Hub
	queue        *queueMemory.Queue
	pubsubClient *pubsub.Client
	gcsClient    *storage.Client
	filmStore    *pgstore.FilmStore
	headless     *headlessfetcher.Fetcher
}

// Build constructs the full service graph from configuration:
// stores, fetchers, the collector, the worker pool and the HTTP API.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	jobStore := memoryStorage.NewJobStore()

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	app.dispatch, err = setupDispatcher(app, jobStore, blobStore, publisher, emitter)
	if err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(
		jobStore,
		app.dispatch,
		uuid.New(),
		system.New(),
		cfg,
		logger.Named("api"),
	)
	return app, nil
}

// Run starts the dispatcher and HTTP server and blocks until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close releases infrastructure handles. Safe to call once after Run.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.filmStore != nil {
		a.filmStore.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		return blobStore, nil
	case config.StorageLocal:
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local storage backend", zap.String("base_dir", app.cfg.Storage.BaseDir))
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Info("no database DSN configured, film archiving disabled")
		return nil
	}
	filmStore, err := pgstore.NewFilmStore(ctx, pgstore.FilmStoreConfig{
		DSN:      app.cfg.DB.DSN,
		Table:    app.cfg.DB.Table,
		MaxConns: int32(app.cfg.DB.MaxConns),
		MinConns: int32(app.cfg.DB.MinConns),
	})
	if err != nil {
		return fmt.Errorf("film store init failed: %w", err)
	}
	app.filmStore = filmStore
	app.logger.Info("film archive initialized", zap.String("table", app.cfg.DB.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" || app.cfg.PubSub.TopicName == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(client), nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupDispatcher(
	app *App,
	jobStore crawler.JobStore,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) (*dispatcher.Dispatcher, error) {
	cfg := app.cfg

	direct := ajaxfetcher.New(ajaxfetcher.Config{
		BaseURL:     cfg.Crawler.BaseURL,
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: cfg.FetchBackoff(),
	}, app.logger.Named("ajax"))

	headlessCfg := headlessfetcher.Config{
		BaseURL:        cfg.Crawler.BaseURL,
		UserAgent:      cfg.Crawler.UserAgent,
		WaitTimeout:    cfg.HeadlessWaitTimeout(),
		SessionTimeout: cfg.HeadlessSessionTimeout(),
		MaxParallel:    cfg.Headless.MaxParallel,
	}
	browser, err := headlessfetcher.New(headlessCfg, app.logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	app.headless = browser
	discoverer := headlessfetcher.NewDiscoverer(headlessCfg, app.logger.Named("discovery"))

	runner := collector.New(
		direct,
		browser,
		discoverer,
		cfg.DefaultYears(),
		emitter,
		app.logger.Named("collector"),
	)

	workerCfg := worker.Config{
		ContentType: cfg.Storage.ContentType,
		BlobPrefix:  cfg.Storage.Prefix,
		Topic:       cfg.PubSub.TopicName,
	}
	hasher := sha256.New()
	clock := system.New()

	var filmStore crawler.FilmStore
	if app.filmStore != nil {
		filmStore = app.filmStore
	}

	workers := make([]*worker.Worker, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			blobStore,
			publisher,
			filmStore,
			hasher,
			clock,
			runner,
			emitter,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers), nil
}
