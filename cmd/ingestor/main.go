// The ingestor daemon runs the video ingestion worker pool: it dequeues
// ingest jobs, acquires transcripts, chunks and embeds them, and writes the
// vectors to Postgres.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidqa/ingestor/internal/config"
	"github.com/vidqa/ingestor/internal/observability"
	"github.com/vidqa/ingestor/pkg/database"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	app, err := NewApp(cfg, db)
	if err != nil {
		slog.Error("Failed to build application", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting ingestor",
		"workers", cfg.IngestMaxConcurrent,
		"max_attempts", cfg.IngestMaxAttempts,
		"embedding_model", cfg.EmbeddingModel,
	)

	runErr := app.Run(runCtx)

	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}

	if runErr != nil {
		slog.Error("Ingestor exited with error", "error", runErr)
		os.Exit(1)
	}

	slog.Info("Ingestor exited")
}
