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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/core"
	db "github.com/JonMunkholm/policyingest/internal/database"
	"github.com/JonMunkholm/policyingest/internal/logging"
	"github.com/JonMunkholm/policyingest/internal/monitor"
	"github.com/JonMunkholm/policyingest/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"chunk_size", cfg.Upload.ChunkSize,
		"max_workers", cfg.Upload.MaxWorkers,
		"max_store_conns", cfg.Upload.MaxStoreConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Root context: cancelled by SIGINT/SIGTERM or by the CPU monitor.
	ctx, stop := context.WithCancelCause(context.Background())
	defer stop(nil)

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	limiter := core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	service, err := core.NewService(core.NewPgStore(pool), core.IngestConfig{
		ChunkSize:     cfg.Upload.ChunkSize,
		MaxWorkers:    cfg.Upload.MaxWorkers,
		MaxStoreConns: cfg.Upload.MaxStoreConns,
		Timeout:       cfg.Upload.Timeout,
	},
		core.WithLimiter(limiter),
		core.WithMetrics(core.NewMetrics(registry)),
		core.WithRunStore(core.NewPgRunStore(pool)),
	)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	var scheduler *core.MessageScheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = startScheduler(ctx, pool, cfg.Scheduler)
		if err != nil {
			slog.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Monitor.Enabled {
		cpuMonitor := monitor.New(cfg.Monitor.CPUThreshold, cfg.Monitor.Interval,
			func(context.Context) error {
				// Shut down cleanly and let the process supervisor start a new instance.
				stop(errCPURestart)
				return nil
			})
		go cpuMonitor.Run(ctx)
	}

	server := web.NewServer(cfg, service, scheduler, registry)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			slog.Info("received signal", "signal", sig.String())
			stop(nil)
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down...", "cause", context.Cause(ctx))
	shutdown(server, limiter, scheduler, cfg.Server.ShutdownTimeout)
}

var errCPURestart = errors.New("cpu threshold exceeded")

// connect builds the pgx pool from config and verifies it with a ping.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// startScheduler re-arms pending messages and starts the job runner.
func startScheduler(ctx context.Context, pool *pgxpool.Pool, cfg config.SchedulerConfig) (*core.MessageScheduler, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, err
	}

	scheduler := core.NewMessageScheduler(core.NewPgMessageStore(pool), loc)
	n, err := scheduler.ReplayPending(ctx)
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	slog.Info("scheduler started", "location", loc.String(), "replayed", n)
	return scheduler, nil
}

// shutdown stops accepting requests, waits for in-flight uploads and stops
// the scheduler, all within timeout.
func shutdown(server *web.Server, limiter *core.UploadLimiter, scheduler *core.MessageScheduler, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	if active := limiter.ActiveCount(); active > 0 {
		slog.Info("waiting for uploads to complete", "active", active)
		if err := limiter.WaitForDrain(ctx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		} else {
			slog.Info("all uploads completed")
		}
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	slog.Info("shutdown complete")
}
