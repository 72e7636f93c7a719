package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/part-configurator/internal/api"
	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/cleanup"
	"github.com/terra-clan/part-configurator/internal/config"
	"github.com/terra-clan/part-configurator/internal/configuration"
	"github.com/terra-clan/part-configurator/internal/exporter"
	"github.com/terra-clan/part-configurator/internal/health"
	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/preview"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting configurator",
		"version", config.Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"sessions", cfg.Session.Store,
		"dispatcher", cfg.Export.Dispatcher,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	m := metrics.New()
	checks := health.NewRegistry(2 * time.Second)

	// Storage
	repo, err := openRepository(initCtx, cfg.Database, checks)
	if err != nil {
		slog.Error("failed to open configuration store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	checks.Register("database", health.CheckerFunc(repo.Ping))

	// Product schemas
	registry, err := catalog.NewBuiltinRegistry()
	if err != nil {
		slog.Error("failed to build schema registry", "error", err)
		os.Exit(1)
	}
	loader := catalog.NewLoader(registry)
	if cfg.Schemas.Dir != "" {
		n, err := loader.LoadFromDir(cfg.Schemas.Dir)
		if err != nil {
			slog.Warn("failed to load schemas from dir", "dir", cfg.Schemas.Dir, "error", err)
		}
		slog.Info("schemas loaded", "dir", cfg.Schemas.Dir, "count", n)
	}

	// Sessions
	store, err := openSessionStore(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	checks.Register("sessions", health.CheckerFunc(store.Ping))

	resolver := preview.NewResolver(cfg.Models.Dir, cfg.Models.BaseURL)
	sessions := session.NewManager(store, registry,
		session.WithTTL(cfg.Session.TTL),
		session.WithResolver(resolver),
		session.WithMetrics(m),
	)

	configs := configuration.NewService(repo, sessions, m)
	exports := exporter.NewService(repo, configs, m)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Schemas.Dir != "" && cfg.Schemas.Watch {
		watcher, err := catalog.NewWatcher(cfg.Schemas.Dir, loader, 0)
		if err != nil {
			slog.Error("failed to create schema watcher", "error", err)
			os.Exit(1)
		}
		if err := watcher.Start(ctx); err != nil {
			slog.Error("failed to watch schema dir", "dir", cfg.Schemas.Dir, "error", err)
			os.Exit(1)
		}
		defer watcher.Close()
	}

	// Redis expires sessions itself; the memory store needs a sweeper
	if purger, ok := store.(cleanup.Purger); ok {
		cleaner := cleanup.NewCleaner(purger, m, cfg.Session.CleanupInterval)
		cleaner.Start(ctx)
	}

	// Export dispatch
	dispatcher, err := openDispatcher(cfg)
	if err != nil {
		slog.Error("failed to create export dispatcher", "error", err)
		os.Exit(1)
	}
	if dispatcher != nil {
		defer dispatcher.Close()
		checks.Register("dispatcher", health.CheckerFunc(dispatcher.Ping))

		worker := exporter.NewWorker(exports, repo, dispatcher, m, exporter.WorkerConfig{
			Interval:     cfg.Export.Interval,
			Batch:        cfg.Export.Batch,
			CallbackBase: cfg.Server.PublicURL + "/api/v1",
		})
		worker.Start(ctx)
	} else {
		slog.Info("export dispatch disabled, exports wait for an external worker")
	}

	// Setup HTTP server
	server := api.NewServer(api.Dependencies{
		Schemas:        registry,
		Sessions:       sessions,
		Configurations: configs,
		Exports:        exports,
		Resolver:       resolver,
		Repo:           repo,
		Health:         checks,
		Metrics:        m,
	}, api.OptionsFromConfig(cfg))

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: session streams are long-lived
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("configurator stopped")
}

// openRepository opens the configured store and applies its migrations
func openRepository(ctx context.Context, cfg config.DatabaseConfig, checks *health.Registry) (storage.Repository, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory configuration store, data is lost on restart")
		return storage.NewMemoryRepository(), nil

	case "postgres":
		fsys, err := storage.MigrationsFS("postgres", cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		slog.Info("running database migrations", "driver", "postgres")
		if err := repo.Migrate(ctx, fsys); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		// Separate readiness check over database/sql
		checker, err := health.NewPostgresChecker(cfg.DSN)
		if err != nil {
			repo.Close()
			return nil, err
		}
		checks.Register("postgres", checker)
		slog.Info("database connected successfully")
		return repo, nil

	default:
		fsys, err := storage.MigrationsFS("sqlite", cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		repo, err := storage.NewSQLiteRepository(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("running database migrations", "driver", "sqlite", "path", cfg.SQLitePath)
		if err := repo.Migrate(ctx, fsys); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repo, nil
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.Session.Store != "redis" {
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewRedisStore(ctx, session.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("redis session store connected", "address", cfg.Redis.Address)
	return store, nil
}

// openDispatcher returns nil when exports are handled outside the service
func openDispatcher(cfg *config.Config) (exporter.Dispatcher, error) {
	switch cfg.Export.Dispatcher {
	case "nats":
		return exporter.NewNATSDispatcher(exporter.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
		})
	case "docker":
		return exporter.NewDockerDispatcher(exporter.DockerConfig{
			Host:       cfg.Docker.Host,
			Image:      cfg.Docker.Image,
			Network:    cfg.Docker.Network,
			PullPolicy: cfg.Docker.PullPolicy,
			OutputDir:  cfg.Docker.OutputDir,
		})
	}
	return nil, nil
}
