// Package app provides the application lifecycle management for the
// geoserver-publisher service: dependency wiring, startup, and graceful
// shutdown.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/URBREATH/geoserver-publisher/internal/api"
	"github.com/URBREATH/geoserver-publisher/internal/catalog"
	"github.com/URBREATH/geoserver-publisher/internal/config"
	"github.com/URBREATH/geoserver-publisher/internal/geoserver"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
	"github.com/URBREATH/geoserver-publisher/internal/publisher"
	"github.com/URBREATH/geoserver-publisher/internal/storage"
	"github.com/URBREATH/geoserver-publisher/internal/telemetry"
	"github.com/URBREATH/geoserver-publisher/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	pingTimeout = 10 * time.Second
)

// App represents the publisher application with all its dependencies
type App struct {
	config     *config.Config
	logger     logger.Logger
	store      storage.ObjectStore
	worker     *worker.CycleWorker
	httpServer *http.Server
	version    string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
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
		logger.String("service", "geoserver-publisher"),
		logger.String("version", opts.Version),
	)

	store, err := storage.NewMinioStore(cfg.Storage, appLogger)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if pingErr := store.Ping(ctx); pingErr != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to object storage: %w", pingErr)
	}

	geoClient, err := geoserver.NewClient(cfg.GeoServer, appLogger)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create geoserver client: %w", err)
	}

	templates := catalog.LoadTemplates(
		cfg.Catalog.DistributionTemplatePath,
		cfg.Catalog.DatasetTemplatePath,
		appLogger,
	)
	broker := catalog.NewBrokerClient(cfg.Catalog.URL, appLogger)
	if !broker.Enabled() {
		appLogger.Info("catalog broker not configured, bundle publication disabled")
	}
	bundles := catalog.NewBundlePublisher(broker, templates, catalog.BundleConfig{
		ProxyURL:           cfg.Storage.ProxyURL,
		Bucket:             cfg.Storage.Bucket,
		GeoServerPublicURL: cfg.GeoServer.PublicURL,
	}, appLogger)

	resources := publisher.New(geoClient, cfg.Service.StagingDir, cfg.GeoServer.DataRoot, appLogger)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	cycleWorker := worker.New(store, resources, bundles, metrics,
		cfg.Service.PollInterval, appLogger)

	router := api.NewRouter(store, cycleWorker, cfg)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		config:     cfg,
		logger:     appLogger,
		store:      store,
		worker:     cycleWorker,
		httpServer: httpServer,
		version:    opts.Version,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	a.worker.Start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			logger.String("address", a.config.Server.Address))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	return a.waitForShutdown(workerCancel, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(workerCancel context.CancelFunc, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully",
			logger.String("signal", sig.String()))

	case err := <-serverErr:
		a.logger.Error("HTTP server error", logger.Error(err))
		shutdownErr = err
	}

	workerCancel()
	a.worker.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("service stopped")
	return shutdownErr
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
