// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/connectivity"
	"github.com/tildaslashalef/congregate/internal/database"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/queue"
	"github.com/tildaslashalef/congregate/internal/records"
	"github.com/tildaslashalef/congregate/internal/remote"
	"github.com/tildaslashalef/congregate/internal/store"
	"github.com/tildaslashalef/congregate/internal/sync"
	"github.com/urfave/cli/v2"
)

// Options tune how the application starts
type Options struct {
	ConfigDir string // Defaults to ~/.congregate
	EnvFile   string // Defaults to <ConfigDir>/.env
	Offline   bool   // Never contact the remote service
}

// App owns every long-lived handle. Nothing here is a package global,
// so tests and commands can build as many instances as they need.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Settings *config.SettingsService
	Store    store.Repository
	Queue    queue.Queue
	Remote   *remote.Client
	Signal   connectivity.Signal
	Sync     *sync.Service
	Records  *records.Service

	monitor *connectivity.Monitor
	watcher *connectivity.Watcher
	logger  *loggy.Logger
}

// New initializes a new application instance with all its dependencies
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := initConfig(opts)
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
		"database", cfg.Database.Path,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	app, err := initServices(ctx, cfg, db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}

	loggy.Info("Application initialized successfully", "online", app.Signal.IsOnline())
	return app, nil
}

// initConfig loads the configuration from the environment and .env file
func initConfig(opts Options) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(opts.ConfigDir, opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.Offline {
		cfg.Sync.ForceOffline = true
	}
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices wires the services around an open, migrated database
func initServices(ctx context.Context, cfg *config.Config, db *sql.DB, opts Options) (*App, error) {
	logger := loggy.GetGlobalLogger()

	settings := config.NewSettingsService(config.NewSQLSettingsRepository(db, logger), cfg, logger)
	if err := settings.Apply(ctx); err != nil {
		loggy.Warn("Failed to apply stored settings", "error", err)
	}
	keepDeviceName(ctx, settings, cfg)

	app := &App{
		Config:   cfg,
		DB:       db,
		Settings: settings,
		Store:    store.NewSQLRepository(db, logger),
		Queue:    queue.NewSQLQueue(db, logger),
		Remote:   remote.NewClient(cfg.Remote, logger),
		logger:   logger,
	}

	app.Signal = app.initSignal(ctx)

	app.Sync = sync.NewService(
		cfg.Sync,
		app.Queue,
		app.Store,
		app.Remote,
		app.Signal,
		sync.NewSQLRepository(db, logger),
		logger,
	)

	app.Records = records.NewService(
		app.Store,
		app.Queue,
		app.Remote,
		app.Signal,
		app.Sync,
		logger,
	)

	return app, nil
}

// keepDeviceName stores the generated device name so it stays stable across runs
func keepDeviceName(ctx context.Context, settings *config.SettingsService, cfg *config.Config) {
	stored, err := settings.Repository().GetSetting(ctx, config.KeyRemoteDeviceName)
	if err != nil || stored != "" {
		return
	}
	if err := settings.Set(ctx, config.KeyRemoteDeviceName, cfg.Remote.DeviceName); err != nil {
		loggy.Warn("Failed to store device name", "error", err)
	}
}

// initSignal picks the connectivity source. Without a configured remote, or
// when forced offline, the app runs on a manual signal that stays offline.
func (app *App) initSignal(ctx context.Context) connectivity.Signal {
	cfg := app.Config

	switch {
	case cfg.Sync.ForceOffline:
		loggy.Info("Running offline by request")
		return connectivity.NewManual(false)
	case !cfg.RemoteConfigured():
		loggy.Info("Remote service not configured, running offline")
		return connectivity.NewManual(false)
	}

	app.monitor = connectivity.NewMonitor(app.Remote, cfg.Sync.ProbeInterval, cfg.Sync.ProbeTimeout, app.logger)
	app.monitor.Start(ctx)
	return app.monitor
}

// StartWatcher begins synchronizing on every reconnect
func (app *App) StartWatcher(ctx context.Context) *connectivity.Watcher {
	if app.watcher != nil {
		return app.watcher
	}

	var retry *connectivity.RetryPolicy
	if app.Config.Sync.RetryEnabled {
		retry = &connectivity.RetryPolicy{
			InitialInterval: app.Config.Sync.RetryInitialInterval,
			MaxInterval:     app.Config.Sync.RetryMaxInterval,
		}
	}

	app.watcher = connectivity.NewWatcher(app.Signal, app.Sync, retry, app.logger)
	app.watcher.Start(ctx)
	return app.watcher
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.watcher != nil {
		app.watcher.Stop()
	}
	if app.monitor != nil {
		app.monitor.Stop()
	}

	if err := app.DB.Close(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return loggy.GetGlobalLogger().Close()
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
