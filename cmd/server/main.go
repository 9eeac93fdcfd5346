package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hangulab/topik-backend/internal/config"
	"github.com/hangulab/topik-backend/internal/database"
	"github.com/hangulab/topik-backend/internal/grader"
	"github.com/hangulab/topik-backend/internal/handler"
	"github.com/hangulab/topik-backend/internal/logger"
	"github.com/hangulab/topik-backend/internal/queue"
	"github.com/hangulab/topik-backend/internal/repository"
	"github.com/hangulab/topik-backend/internal/router"
	"github.com/hangulab/topik-backend/internal/service"
	"github.com/hangulab/topik-backend/internal/validator"
	"github.com/hangulab/topik-backend/internal/worker"
	"github.com/rs/zerolog"
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
		Msg("Starting TOPIK Backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)

	// ─── Review Queue ──────────────────────────────────────────────────
	reviewQueue := queue.New(rdb, config.QueueKey.ReviewReadyList, queue.Options{
		MaxAttempts: cfg.ReviewMaxAttempts,
		BackoffBase: cfg.ReviewBackoffBase,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, sessionRepo, answerRepo, log)
	sessionService := service.NewSessionService(examRepo, sessionRepo, answerRepo, reviewQueue, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(examService),
		Session: handler.NewSessionHandler(sessionService),
	}

	// ─── Start Review Worker ──────────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	essayGrader := grader.New(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)
	reviewWorker := worker.NewReviewWorker(answerRepo, essayGrader, reviewQueue, cfg.ReviewWorkers, cfg.AITimeout, log)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := reviewWorker.Start(workerCtx); err != nil {
			log.Error().Err(err).Msg("Review worker stopped with error")
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

	// 2. Stop the review worker and wait for in-flight jobs.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Review worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
