package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"podium.app/arena/common/id"
	"podium.app/arena/common/logger"
	"podium.app/arena/common/otel"
	"podium.app/arena/core/config"
	"podium.app/arena/core/db"
	"podium.app/arena/internal/bus"
	"podium.app/arena/internal/schedq"
	"podium.app/arena/internal/store"
	"podium.app/arena/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "arena worker starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, db.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	busClient := redis.NewClient(redisOpts)
	if err := busClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	queueClient := redis.NewClient(redisOpts)
	defer queueClient.Close()
	slog.InfoContext(ctx, "redis connected", "queue_key", cfg.Queue.Key)

	eventBus := bus.New(busClient, bus.Config{
		Retention:     cfg.Bus.Retention,
		BufferTTL:     cfg.Bus.BufferTTL,
		SweepInterval: cfg.Bus.SweepInterval,
		EntryCap:      cfg.Bus.EntryCap,
		GapCap:        cfg.Bus.GapCap,
	})
	defer eventBus.Close()

	queue := schedq.New(queueClient, schedq.Config{
		Key:         cfg.Queue.Key,
		DeadStream:  cfg.Queue.DeadStream,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
	})

	stores := store.New(database)

	w := worker.New(queue, worker.Config{PollInterval: cfg.Queue.PollInterval})
	transitions := worker.NewTransitions(stores.Divisions, stores.Matches, stores.Sessions, stores.States, eventBus)
	transitions.Register(w)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
		w.Stop()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
