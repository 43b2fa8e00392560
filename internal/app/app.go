// Package app builds the long-lived ingest services from configuration and
// owns their shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/api"
	"github.com/JakeFAU/movie-ingest/internal/clock/system"
	"github.com/JakeFAU/movie-ingest/internal/config"
	"github.com/JakeFAU/movie-ingest/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/movie-ingest/internal/fetcher/colly"
	runid "github.com/JakeFAU/movie-ingest/internal/id/uuid"
	"github.com/JakeFAU/movie-ingest/internal/ingest"
	"github.com/JakeFAU/movie-ingest/internal/logging"
	"github.com/JakeFAU/movie-ingest/internal/metrics"
	"github.com/JakeFAU/movie-ingest/internal/movie"
	"github.com/JakeFAU/movie-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/movie-ingest/internal/progress"
	progresssinks "github.com/JakeFAU/movie-ingest/internal/progress/sinks"
	mempublisher "github.com/JakeFAU/movie-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/movie-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/movie-ingest/internal/sitemap"
	"github.com/JakeFAU/movie-ingest/internal/storage/memory"
	"github.com/JakeFAU/movie-ingest/internal/storage/migrations"
	pgstore "github.com/JakeFAU/movie-ingest/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/movie-ingest/internal/storage/sqlite"
)

const defaultShutdownTimeout = 30 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	runner   *ingest.Runner
	dispatch *dispatcher.Dispatcher
	store    movie.Store
	tracker  movie.RunTracker
	ready    api.ReadyFunc

	progressHub     *progress.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	memPublisher    *mempublisher.Publisher
	gcsClient       *storage.Client
	pgPool          *pgxpool.Pool
	sqlDB           *sql.DB
}

// Build creates the application's dependencies. reg receives the progress
// collectors; nil means the default registry.
func Build(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("sitemap_base", cfg.Sitemap.Base),
		zap.Int("workers", cfg.Ingest.Workers),
	)

	built := false
	defer func() {
		if !built {
			app.closeInfrastructure(context.Background())
		}
	}()

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	source, err := app.setupSitemap(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress(reg)
	if err != nil {
		return nil, err
	}

	ids := runid.New()
	app.runner, err = ingest.New(ingest.Deps{
		Sources: enumerator(cfg.Sitemap),
		Sitemap: source,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetcher.UserAgent,
			RespectRobots: cfg.Fetcher.RespectRobots,
			Timeout:       cfg.Fetcher.Timeout,
			Selectors:     cfg.Fetcher.Selectors,
		}, logger.Named("fetcher")),
		Store: app.store,
		Limiter: ratelimit.New(ratelimit.Config{
			Interval: cfg.Ingest.Interval,
			Burst:    cfg.Ingest.Burst,
		}),
		Tracker: app.tracker,
		Emitter: emitter,
		IDs:     ids,
		Clock:   system.New(),
		Logger:  logger.Named("ingest"),
	}, ingest.Config{
		Workers:      cfg.Ingest.Workers,
		StoreTimeout: cfg.Ingest.StoreTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("runner init failed: %w", err)
	}
	app.dispatch = dispatcher.New(app.runner, ids, logger.Named("dispatcher"))

	built = true
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the ingest runner for foreground runs.
func (a *App) Runner() *ingest.Runner {
	return a.runner
}

// Ingest runs the pipeline in the foreground from start.
func (a *App) Ingest(ctx context.Context, start ingest.Checkpoint) ingest.Report {
	return a.runner.Run(ctx, start)
}

// Store returns the configured movie store.
func (a *App) Store() movie.Store {
	return a.store
}

// ResumePoint returns the checkpoint of the most recently started run.
func (a *App) ResumePoint(ctx context.Context) (ingest.Checkpoint, error) {
	cp, err := ingest.ResumePoint(ctx, a.tracker)
	if err != nil {
		return ingest.Checkpoint{}, fmt.Errorf("resume point: %w", err)
	}
	return cp, nil
}

// Handler returns the control API.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.dispatch, a.tracker, a.ready, a.cfg, a.logger.Named("api")).Handler()
}

// Serve runs the control API until ctx is canceled or a termination signal
// arrives, then cancels any active run and shuts down.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.dispatch.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("active run did not stop in time", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.dispatch != nil {
		if err := a.dispatch.Shutdown(ctx); err != nil {
			a.logger.Warn("dispatcher shutdown failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil && !isSyncNoise(err) {
		return fmt.Errorf("logger sync: %w", err)
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
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
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.sqlDB != nil {
		if err := a.sqlDB.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		if a.cfg.Store.AutoMigrate {
			if err := migratePostgres(ctx, a.cfg.Store.DSN, a.logger.Named("migrations")); err != nil {
				return err
			}
		}
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pgPool = pool
		if a.store, err = pgstore.NewMovieStore(pool); err != nil {
			return fmt.Errorf("postgres movie store init failed: %w", err)
		}
		if a.tracker, err = pgstore.NewRunTracker(pool); err != nil {
			return fmt.Errorf("postgres run tracker init failed: %w", err)
		}
		a.ready = func(ctx context.Context) error { return pool.Ping(ctx) }
		a.logger.Info("using postgres store")
	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, a.cfg.Store.Path, a.logger.Named("migrations"))
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		a.sqlDB = db
		a.store = sqlitestore.NewMovieStore(db)
		a.tracker = sqlitestore.NewRunTracker(db)
		a.ready = db.PingContext
		a.logger.Info("using sqlite store", zap.String("path", a.cfg.Store.Path))
	default:
		a.logger.Info("using in-memory store")
		a.store = memory.NewMovieStore()
		a.tracker = memory.NewRunTracker()
	}
	return nil
}

func migratePostgres(ctx context.Context, dsn string, logger *zap.Logger) error {
	db, err := migrations.Open(migrations.Postgres, dsn)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // migration handle only
	m, err := migrations.New(db, migrations.Postgres, logger)
	if err != nil {
		return err
	}
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("postgres migrations failed: %w", err)
	}
	return nil
}

func (a *App) setupSitemap(ctx context.Context) (*sitemap.Source, error) {
	opener := sitemap.SchemeOpener{
		File: sitemap.FileOpener{},
		HTTP: sitemap.NewHTTPOpener(sitemap.HTTPConfig{
			UserAgent: a.cfg.Fetcher.UserAgent,
			Timeout:   a.cfg.Sitemap.Timeout,
			MaxBytes:  a.cfg.Sitemap.MaxBytes,
		}),
	}
	if strings.HasPrefix(a.cfg.Sitemap.Base, "gs://") {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		opener.GCS = sitemap.NewGCSOpener(client)
		a.logger.Info("reading sitemaps from GCS", zap.String("base", a.cfg.Sitemap.Base))
	}
	return sitemap.NewSource(sitemap.Config{
		BaseLocation:  a.cfg.Sitemap.Base,
		DetailSegment: a.cfg.Sitemap.DetailSegment,
		MaxURLs:       a.cfg.Ingest.MaxURLs,
	}, opener, a.logger.Named("sitemap")), nil
}

func enumerator(cfg config.SitemapConfig) movie.SourceEnumerator {
	if len(cfg.Sources) > 0 {
		return sitemap.List(cfg.Sources)
	}
	return sitemap.Series{Pattern: cfg.Pattern, First: cfg.First, Count: cfg.Count}
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		if a.cfg.Store.Driver == config.DriverMemory {
			a.memPublisher = mempublisher.New(mempublisher.DefaultCapacity)
			a.logger.Info("stored-movie notifications kept in memory",
				zap.Int("capacity", mempublisher.DefaultCapacity),
			)
			return nil
		}
		a.logger.Info("stored-movie notifications disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	otel.SetTextMapPropagator(gcppublisher.NewPropagator())
	a.pubsubPublisher = gcppublisher.New(client, a.cfg.PubSub.TopicName)
	a.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	var notify movie.Publisher
	switch {
	case a.pubsubPublisher != nil:
		notify = a.pubsubPublisher
	case a.memPublisher != nil:
		notify = a.memPublisher
	}
	if notify != nil {
		sinkList = append(sinkList, progresssinks.NewPublisherSink(
			notify,
			a.cfg.PubSub.TopicName,
			a.logger.Named("progress_publisher"),
		))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub, nil
}

// isSyncNoise filters the EINVAL/ENOTTY zap reports when stderr is a terminal.
func isSyncNoise(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
