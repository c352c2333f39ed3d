// Package main provides the entry point for the embedding enrichment worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/database"
	"github.com/paperscope/discovery-service/internal/embedding"
	"github.com/paperscope/discovery-service/internal/enrich"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/qdrant"
	"github.com/paperscope/discovery-service/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka is disabled; the enrichment worker has nothing to consume")
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("discovery-service enrichment worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	paperRepo := repository.NewPgPaperRepository(db)

	// Create metrics.
	metrics := observability.NewMetrics("discovery")

	// Connect to Qdrant and make sure the embedding collection exists.
	qdrantClient, err := qdrant.NewClient(qdrant.Config{
		Address:        cfg.Qdrant.Address,
		CollectionName: cfg.Qdrant.CollectionName,
		VectorSize:     cfg.Qdrant.VectorSize,
	})
	if err != nil {
		return fmt.Errorf("create qdrant client: %w", err)
	}
	defer qdrantClient.Close()

	if err := qdrantClient.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure qdrant collection: %w", err)
	}
	logger.Info().
		Str("address", cfg.Qdrant.Address).
		Str("collection", cfg.Qdrant.CollectionName).
		Msg("qdrant client connected")

	// Create the embedding client.
	embedder := embedding.NewClient(embedding.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: int(cfg.Qdrant.VectorSize),
		Timeout:    cfg.Embedding.Timeout,
	})

	// Create and run the enrichment worker.
	worker := enrich.NewWorker(cfg.Kafka, cfg.Enrichment, paperRepo, qdrantClient, embedder, metrics, logger)
	defer func() {
		if closeErr := worker.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close worker")
		}
	}()

	logger.Info().
		Str("topic", cfg.Kafka.Topic).
		Str("group_id", cfg.Kafka.GroupID).
		Int("workers", cfg.Enrichment.Workers).
		Msg("consuming enrichment batches")

	if err := worker.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}
