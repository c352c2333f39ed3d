// Package observability provides logging and metrics support for the paper
// discovery service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, cache, dedup, and enrichment
//   - Context helpers for propagating correlation data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("query", query).Msg("search started")
//
// Add search context to logger:
//
//	logger = observability.WithSearchContext(logger, query, category)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("discovery")
//
// Record metrics:
//
//	metrics.RecordSearchStarted()
//	metrics.RecordSourceSearchCompleted("arxiv", 1.2)
//	metrics.RecordPapersPersisted(42)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithSessionID(ctx, sessionID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: Request identifier
//   - session_id: Opaque client session identifier
//   - query: User's search query
//   - category: Research category
//   - source: Paper source (local, arxiv, semantic_scholar, openalex)
//   - paper_id: Paper identifier
//   - canonical_id: Canonical paper identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
