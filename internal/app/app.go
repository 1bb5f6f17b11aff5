// Package app provides application lifecycle management for the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/api"
	"github.com/jonesrussell/content-scheduler/internal/approval"
	"github.com/jonesrussell/content-scheduler/internal/config"
	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/notify"
	"github.com/jonesrussell/content-scheduler/internal/publish"
	"github.com/jonesrussell/content-scheduler/internal/worker"
)

const (
	// DefaultShutdownTimeout is the timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	redisPingTimeout = 5 * time.Second
)

// App wires the scheduler's dependencies and runs the worker plus the
// operational HTTP server.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient redis.UniversalClient
	dispatcher  *worker.Dispatcher
	approvals   *approval.Service
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App.
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "content-scheduler"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	contentRepo := database.NewContentRepository(db.DB)
	approvalRepo := database.NewApprovalRepository(db.DB)
	scheduleRepo := database.NewScheduleRepository(db.DB, cfg.Worker.MaxRetries)
	postRepo := database.NewPostRepository(db.DB)

	notifier := notify.NewNotifier(redisClient, appLogger)
	approvals := approval.NewService(contentRepo, approvalRepo, notifier, appLogger)

	publisher, err := publish.NewHTTPPublisher(cfg.Publish.GatewayURL, cfg.Publish.GatewayToken, appLogger)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	coordinator := publish.NewCoordinator(
		publisher,
		approvals,
		contentRepo,
		postRepo,
		notifier,
		m,
		publish.CoordinatorConfig{
			PublishTimeout: cfg.Publish.Timeout,
			MaxConcurrent:  cfg.Publish.MaxConcurrent,
			RatePerSecond:  cfg.Publish.RatePerSecond,
		},
		appLogger,
	)

	dispatcher := worker.NewDispatcher(
		scheduleRepo,
		contentRepo,
		coordinator,
		notifier,
		m,
		worker.DispatcherConfig{
			PollInterval:  cfg.Worker.PollInterval,
			BatchSize:     cfg.Worker.BatchSize,
			MaxConcurrent: cfg.Worker.MaxConcurrent,
			StaleClaimAge: cfg.Worker.StaleClaimAge,
		},
		appLogger,
	)

	router := api.NewRouter(scheduleRepo, redisClient, registry, cfg,
		func(ctx context.Context) error { return db.PingContext(ctx) },
		appLogger)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		dispatcher:  dispatcher,
		approvals:   approvals,
		httpServer:  router.NewServer(),
		version:     opts.Version,
	}, nil
}

// Run starts the worker and HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	a.dispatcher.Start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting operational server",
			logger.String("address", a.config.Server.Address))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("server error", logger.Error(err))
			runErr = err
		}
	case <-ctx.Done():
	}

	workerCancel()
	a.dispatcher.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("service stopped")
	return runErr
}

func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", logger.Error(err))
	}
}

// Approvals exposes the approval service for embedding callers.
func (a *App) Approvals() *approval.Service {
	return a.approvals
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger {
	return a.logger
}

// Close cleans up resources.
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}
