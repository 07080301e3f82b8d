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

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/retrieva/internal/api"
	"github.com/nikhilbhutani/retrieva/internal/app"
	"github.com/nikhilbhutani/retrieva/internal/config"
	"github.com/nikhilbhutani/retrieva/internal/database"
	"github.com/nikhilbhutani/retrieva/internal/queue"
	"github.com/nikhilbhutani/retrieva/internal/queue/workers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(app.NewLogger(cfg.Log, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.DB != nil {
		if err := database.RunMigrations(ctx, a.DB, cfg.Database.MigrationsPath); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
	}

	if cfg.Embedding.Prewarm {
		a.Embedder.Prewarm(ctx)
	}
	go a.Sessions.Run(ctx)

	// Queued ingests must run in this process: sessions live in its memory.
	if a.Queue != nil {
		registry := queue.NewHandlersRegistry()
		registry.Register(queue.TypeDocumentIngest, workers.NewIngestWorker(a.Pipeline))
		worker := queue.NewServer(cfg.Redis, cfg.Queue.Concurrency)
		if err := worker.Start(registry.Mux()); err != nil {
			slog.Error("failed to start queue worker", "error", err)
			os.Exit(1)
		}
		defer worker.Shutdown()
		slog.Info("queue worker started", "concurrency", cfg.Queue.Concurrency)
	}

	router := api.NewRouter(api.DepsFromApp(a))
	handler := router.Setup(ctx)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "embedding_backend", cfg.Embedding.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
