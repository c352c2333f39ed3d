// Package main provides the entry point for the paper discovery HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/paperscope/discovery-service/internal/cache"
	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/database"
	"github.com/paperscope/discovery-service/internal/embedding"
	"github.com/paperscope/discovery-service/internal/engine"
	"github.com/paperscope/discovery-service/internal/enrich"
	"github.com/paperscope/discovery-service/internal/index"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/qdrant"
	"github.com/paperscope/discovery-service/internal/repository"
	httpserver "github.com/paperscope/discovery-service/internal/server/http"
	"github.com/paperscope/discovery-service/internal/sources"
	"github.com/paperscope/discovery-service/internal/sources/arxiv"
	"github.com/paperscope/discovery-service/internal/sources/openalex"
	"github.com/paperscope/discovery-service/internal/sources/semanticscholar"
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

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("discovery-service server starting")

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

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create the paper repository.
	paperRepo := repository.NewPgPaperRepository(db)

	// Create metrics.
	metrics := observability.NewMetrics("discovery")

	// Connect to Redis for the result cache if enabled. A down cache is not
	// fatal; searches just skip the consult step.
	var resultCache *cache.ResultCache
	if cfg.Redis.Enabled {
		resultCache, err = cache.New(ctx, &cfg.Redis, cfg.Search.CacheTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("result cache unavailable; continuing without caching")
			resultCache = nil
		} else {
			defer func() {
				if closeErr := resultCache.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close result cache")
				}
			}()
			logger.Info().Str("address", cfg.Redis.Address).Msg("result cache connected")
		}
	}

	// Connect to Qdrant for local vector search.
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

	// Create the embedding client for semantic query vectors.
	embedder := embedding.NewClient(embedding.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: int(cfg.Qdrant.VectorSize),
		Timeout:    cfg.Embedding.Timeout,
	})

	// Create the external source registry and register enabled sources.
	registry := sources.NewRegistry()
	registerSources(registry, cfg, logger)

	// Create the local hybrid index.
	localIndex := index.New(paperRepo, qdrantClient, embedder, index.Config{}, logger)

	// Assemble the search pipeline.
	orchestrator := engine.NewOrchestrator(localIndex, registry, cfg.Search.Deadline, metrics, logger)
	merger := engine.NewMerger(cfg.Search.TitleSimilarityThreshold, metrics)

	// Create the enrichment scheduler if Kafka is configured.
	var scheduler engine.EnrichmentScheduler
	if cfg.Kafka.Enabled {
		kafkaScheduler := enrich.NewScheduler(cfg.Kafka, cfg.Enrichment.BatchSize, metrics, logger)
		defer func() {
			if closeErr := kafkaScheduler.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close enrichment scheduler")
			}
		}()
		scheduler = kafkaScheduler
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("enrichment scheduler created")
	} else {
		logger.Warn().Msg("kafka disabled; papers will not be scheduled for embedding")
	}

	var engineCache engine.ResultCache
	var cachePinger httpserver.Pinger
	if resultCache != nil {
		engineCache = resultCache
		cachePinger = resultCache
	}

	searchService := engine.NewService(
		orchestrator,
		merger,
		paperRepo,
		engineCache,
		scheduler,
		cfg.Search,
		metrics,
		logger,
	)

	// Create the HTTP server.
	srv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, searchService, paperRepo, db, cachePinger, logger)

	// Start the metrics server if enabled.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.Server.MetricsAddress(),
			Handler: mux,
		}
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	// Start the HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", cfg.Server.HTTPAddress()).Msg("http server listening")
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

// registerSources registers all enabled external bibliographic sources.
func registerSources(registry *sources.Registry, cfg *config.Config, logger zerolog.Logger) {
	if cfg.Sources.ArXiv.Enabled {
		axCfg := cfg.Sources.ArXiv
		registry.Register(arxiv.New(arxiv.Config{
			BaseURL:    axCfg.BaseURL,
			Timeout:    axCfg.Timeout,
			RateLimit:  axCfg.RateLimit,
			MaxResults: axCfg.MaxResults,
			Enabled:    true,
		}))
		logger.Info().Msg("registered source: arXiv")
	}

	if cfg.Sources.SemanticScholar.Enabled {
		ssCfg := cfg.Sources.SemanticScholar
		registry.Register(semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:    ssCfg.BaseURL,
			APIKey:     ssCfg.APIKey,
			Timeout:    ssCfg.Timeout,
			RateLimit:  ssCfg.RateLimit,
			MaxResults: ssCfg.MaxResults,
			Enabled:    true,
		}, nil))
		logger.Info().Msg("registered source: Semantic Scholar")
	}

	if cfg.Sources.OpenAlex.Enabled {
		oaCfg := cfg.Sources.OpenAlex
		registry.Register(openalex.New(openalex.Config{
			BaseURL:    oaCfg.BaseURL,
			Email:      oaCfg.Email,
			Timeout:    oaCfg.Timeout,
			RateLimit:  oaCfg.RateLimit,
			MaxResults: oaCfg.MaxResults,
			Enabled:    true,
		}))
		logger.Info().Msg("registered source: OpenAlex")
	}
}
