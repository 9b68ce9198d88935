package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/database"
	"github.com/courseloop/assessment-backend/internal/handler"
	"github.com/courseloop/assessment-backend/internal/logger"
	"github.com/courseloop/assessment-backend/internal/router"
	"github.com/courseloop/assessment-backend/internal/service"
	storepg "github.com/courseloop/assessment-backend/internal/store/postgres"
	"github.com/courseloop/assessment-backend/internal/validator"
	"github.com/courseloop/assessment-backend/internal/worker"
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
		Msg("Starting Assessment Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Stores ────────────────────────────────────────────
	questionnaireStore := storepg.NewQuestionnaireStore(pool)
	attemptStore := storepg.NewAttemptStore(pool)
	directory := storepg.NewDirectory(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, directory, directory)
	questionnaireService := service.NewQuestionnaireService(questionnaireStore, rdb, log)
	sessionService := service.NewSessionService(attemptStore, questionnaireStore, directory, rdb, log)
	gradingService := service.NewGradingService(attemptStore, questionnaireStore, rdb, log)
	analyticsService := service.NewAnalyticsService(attemptStore, questionnaireStore, directory, rdb, cfg.AnalyticsCacheTTL, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, directory, directory),
		Questionnaire: handler.NewQuestionnaireHandler(questionnaireService),
		Attempt:       handler.NewAttemptHandler(sessionService, questionnaireService),
		Grading:       handler.NewGradingHandler(gradingService),
		Analytics:     handler.NewAnalyticsHandler(analyticsService),
		WS:            handler.NewWSHandler(rdb, sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	analyticsWorker := worker.NewAnalyticsWorker(analyticsService, rdb, log)

	go autosaveWorker.Start(workerCtx)
	go analyticsWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published questionnaires into Redis BEFORE accepting
	// traffic. This avoids race conditions from lazy loading under
	// thundering herd.
	if err := questionnaireService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

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
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
