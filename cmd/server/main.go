package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/backend"
	"github.com/edukit/assignio-backend/internal/cache"
	"github.com/edukit/assignio-backend/internal/config"
	"github.com/edukit/assignio-backend/internal/database"
	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/handler"
	"github.com/edukit/assignio-backend/internal/logger"
	"github.com/edukit/assignio-backend/internal/repository"
	"github.com/edukit/assignio-backend/internal/router"
	"github.com/edukit/assignio-backend/internal/service"
	"github.com/edukit/assignio-backend/internal/session"
	"github.com/edukit/assignio-backend/internal/validator"
	"github.com/edukit/assignio-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Assignio Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	// The pool is created without a hard ping; the readiness gate probes
	// connectivity and queues work until the backend answers.
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure PostgreSQL pool")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure Redis client")
	}
	defer rdb.Close()

	// ─── Initialize Backend + Gate ─────────────────────────────────────
	ds := backend.NewPostgresDataSource(pool, log)

	g := gate.New(gate.Config{
		MaxRetries:   cfg.GateMaxRetries,
		BaseBackoff:  cfg.GateBaseBackoff,
		BackoffCap:   cfg.GateBackoffCap,
		ProbeTimeout: cfg.GateProbeTimeout,
		OpTimeout:    cfg.GateOpTimeout,
		RetryWindow:  cfg.GateRetryWindow,
		Strict:       cfg.GateStrict,
	}, []gate.Probe{
		ds.LivenessProbe("assignments"),
		ds.LivenessProbe("submissions"),
	}, log)
	g.Start(ctx)

	// ─── Initialize Cache ──────────────────────────────────────────────
	store := cache.NewRedisStore(rdb, "assignio", cfg.CacheTTL, cfg.CacheMaxBytes)

	// ─── Initialize Repositories ───────────────────────────────────────
	assignmentRepo := repository.NewAssignmentRepository(ds)
	submissionRepo := repository.NewSubmissionRepository(ds)

	// ─── Initialize Pipeline + Services ────────────────────────────────
	pipeline := session.NewPipeline(store, g, assignmentRepo, submissionRepo, session.RetryPolicy{
		MaxAttempts: cfg.FetchMaxAttempts,
		BaseDelay:   cfg.FetchBaseDelay,
		Multiplier:  cfg.FetchMultiplier,
		DelayCap:    cfg.FetchDelayCap,
	}, log)

	authService := service.NewAuthService(cfg.JWTSecret)
	assignmentService := service.NewAssignmentService(pipeline, assignmentRepo, g, log)
	sessionService := service.NewSessionService(pipeline, assignmentService, submissionRepo, g, store, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assignment:   handler.NewAssignmentHandler(assignmentService),
		Session:      handler.NewSessionHandler(sessionService),
		Connectivity: handler.NewConnectivityHandler(g),
		WS:           handler.NewWSHandler(g, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	go autosaveWorker.Start(workerCtx)

	// ─── Prewarm Cache ────────────────────────────────────────────────
	// Warm published assignments before accepting traffic; under a cold
	// start with the backend down this is queued behind the gate.
	go func() {
		if err := assignmentService.PrewarmAll(ctx); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	select {
	case <-autosaveWorker.Done():
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Worker drain timed out, exiting anyway")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
