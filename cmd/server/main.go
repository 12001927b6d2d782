package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"podium.app/arena/common/id"
	"podium.app/arena/common/logger"
	"podium.app/arena/common/otel"
	"podium.app/arena/core/config"
	"podium.app/arena/core/db"
	"podium.app/arena/internal/bus"
	"podium.app/arena/internal/http/handler"
	"podium.app/arena/internal/http/middleware"
	httprouter "podium.app/arena/internal/http/router"
	"podium.app/arena/internal/schedq"
	"podium.app/arena/internal/service"
	"podium.app/arena/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "arena server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
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

	// Separate clients: the bus holds long subscribe loops, the queue makes
	// short request/response calls.
	busClient := redis.NewClient(redisOpts)
	if err := busClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	queueClient := redis.NewClient(redisOpts)
	defer queueClient.Close()
	slog.InfoContext(ctx, "redis connected")

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
	auth := service.NewRoleAuthorizer(stores.Users)
	matchService := service.NewMatchService(stores.Divisions, stores.Matches, stores.Teams, stores.States, auth, eventBus, queue)
	judgingService := service.NewJudgingService(stores.Divisions, stores.Sessions, stores.Teams, stores.States, auth, eventBus, queue)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, stores, matchService, judgingService, eventBus)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(
	cfg config.Config,
	stores *store.Stores,
	matchService *service.MatchService,
	judgingService *service.JudgingService,
	eventBus *bus.Bus,
) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, stores.Users, httprouter.Handlers{
		Matches: handler.NewMatchHandler(matchService),
		Judging: handler.NewJudgingHandler(judgingService),
		Events:  handler.NewEventsHandler(eventBus),
	})

	return router
}
