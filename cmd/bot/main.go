// filebutler - personal Telegram file and media utility bot.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashmarin/filebutler/internal/api"
	"github.com/ashmarin/filebutler/internal/bot"
	"github.com/ashmarin/filebutler/internal/config"
	"github.com/ashmarin/filebutler/internal/session"
	"github.com/ashmarin/filebutler/internal/store"
	"github.com/ashmarin/filebutler/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting filebutler",
		"health_port", cfg.HealthPort,
		"session_ttl", cfg.SessionTTL,
		"edit_interval", cfg.EditInterval)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	orch, err := transfer.NewOrchestrator(cfg.StagingDir)
	if err != nil {
		slog.Error("Failed to initialize staging area", "error", err)
		os.Exit(1)
	}
	slog.Info("Staging area ready", "dir", orch.StagingDir())

	sessions := session.New(cfg.SessionTTL)

	tgBot, err := bot.New(cfg, sessions, orch, repo)
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	// Setup health sidecar router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	api.NewHandler(repo, sessions).RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HealthPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session TTL sweeper.
	sessions.StartSweeper(ctx, tgBot.OnEvict)

	// Start health sidecar.
	go func() {
		slog.Info("Health sidecar listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health sidecar failed", "error", err)
			os.Exit(1)
		}
	}()

	// Start bot polling.
	go tgBot.Start()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	tgBot.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Health sidecar forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Stopped successfully")
}
