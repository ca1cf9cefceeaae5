package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/directory"
	"github.com/JonMunkholm/bulkimport/internal/jobstore"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/JonMunkholm/bulkimport/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	// Cancelled on SIGINT/SIGTERM; stops the reaper and rate limiter cleanup.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openDirectory(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open directory", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	store, closeStore, err := openJobStore(ctx, cfg.JobStore)
	if err != nil {
		slog.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	processor := directory.NewProcessor(repo, enrichOptions(cfg.Enrich)...)

	service := core.NewService(store, processor, core.ServiceConfig{
		JobTTL: cfg.JobStore.TTL,
		Batch: core.BatchPolicy{
			Default: cfg.Import.BatchSize,
			Slow:    cfg.Import.SlowBatchSize,
		},
		Limiter: core.NewLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
	})

	server := web.NewServer(ctx, service, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
		return
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Let chunks that were mid-flight finish writing their job state.
	if status := service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for chunks to complete", "active", status.Active)
		if err := service.WaitForChunks(shutdownCtx); err != nil {
			slog.Warn("chunks did not complete in time", "error", err)
		} else {
			slog.Info("all chunks completed")
		}
	}
}

// openDirectory connects to Postgres when DATABASE_URL is set and falls back
// to an in-memory directory otherwise.
func openDirectory(ctx context.Context, cfg config.DatabaseConfig) (directory.Repository, func(), error) {
	if !cfg.Enabled() {
		slog.Warn("DATABASE_URL not set, using in-memory directory")
		return directory.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.AutoMigrate {
		if err := directory.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("migrations applied")
	}

	return directory.NewPostgresRepository(pool), pool.Close, nil
}

// enrichOptions enables geocoding and image downloads when configured.
func enrichOptions(cfg config.EnrichConfig) []directory.ProcessorOption {
	var opts []directory.ProcessorOption
	if cfg.GeocodeEnabled {
		opts = append(opts, directory.WithGeocoder(directory.NewHTTPGeocoder(directory.HTTPGeocoderConfig{
			URL:       cfg.GeocodeURL,
			UserAgent: cfg.GeocodeUserAgent,
			Interval:  cfg.GeocodeInterval,
			Timeout:   cfg.GeocodeTimeout,
		})))
		slog.Info("geocoding enabled", "url", cfg.GeocodeURL, "interval", cfg.GeocodeInterval)
	}
	if cfg.MediaEnabled {
		opts = append(opts, directory.WithMediaFetcher(directory.NewHTTPMediaFetcher(cfg.MediaTimeout, cfg.MediaMaxSize)))
		slog.Info("image downloads enabled", "max_size", cfg.MediaMaxSize)
	}
	return opts
}

// openJobStore builds the configured job store. The memory backend gets a
// reaper bound to ctx.
func openJobStore(ctx context.Context, cfg config.JobStoreConfig) (core.JobStore, func(), error) {
	if cfg.Backend != config.BackendRedis {
		store := jobstore.NewMemoryStore()
		go store.StartReaper(ctx, cfg.ReapInterval)
		slog.Info("job store ready", "backend", config.BackendMemory, "ttl", cfg.TTL)
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	store := jobstore.NewRedisStore(client, cfg.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	slog.Info("job store ready", "backend", config.BackendRedis, "addr", opts.Addr, "ttl", cfg.TTL)
	return store, func() { client.Close() }, nil
}
