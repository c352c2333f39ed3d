package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper discovery service.
// Metrics are organized by subsystem: searches, cache, sources, dedup,
// persistence, and enrichment. All counters and histograms are registered via
// promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// SearchesStarted counts unified searches initiated.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts unified searches that returned a result set.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts unified searches that failed entirely.
	SearchesFailed prometheus.Counter

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// PapersPerSearch observes the merged result count per search.
	PapersPerSearch prometheus.Histogram

	// CacheHits counts result cache hits.
	CacheHits prometheus.Counter

	// CacheMisses counts result cache misses (including degraded errors).
	CacheMisses prometheus.Counter

	// SourceSearchesStarted counts per-source fan-out launches.
	SourceSearchesStarted *prometheus.CounterVec

	// SourceSearchesCompleted counts successful per-source searches.
	SourceSearchesCompleted *prometheus.CounterVec

	// SourceSearchesFailed counts failed per-source searches.
	SourceSearchesFailed *prometheus.CounterVec

	// SourceSearchDuration observes per-source search duration in seconds.
	SourceSearchDuration *prometheus.HistogramVec

	// SourceRequestsTotal counts HTTP requests to source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to source APIs.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRateLimited counts rate-limited responses from source APIs.
	SourceRateLimited *prometheus.CounterVec

	// PapersMerged counts raw records folded into an existing merged paper.
	PapersMerged prometheus.Counter

	// PapersWithoutIdentifier counts records that had to fall back to fuzzy title matching.
	PapersWithoutIdentifier prometheus.Counter

	// PapersPersisted counts papers written by the bulk upsert.
	PapersPersisted prometheus.Counter

	// PersistFailures counts failed bulk upsert batches.
	PersistFailures prometheus.Counter

	// EnrichmentBatchesProduced counts enrichment batches published to the queue.
	EnrichmentBatchesProduced prometheus.Counter

	// EnrichmentBatchesConsumed counts enrichment batches processed by the worker.
	EnrichmentBatchesConsumed prometheus.Counter

	// EnrichmentAttempts counts per-batch processing attempts, labeled by outcome.
	EnrichmentAttempts *prometheus.CounterVec

	// EnrichmentBatchDuration observes enrichment batch processing duration in seconds.
	EnrichmentBatchDuration prometheus.Histogram

	// PapersEmbedded counts papers marked as embedded.
	PapersEmbedded prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of unified searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of unified searches completed",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of unified searches that failed",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end duration of unified searches in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		PapersPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of merged papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),

		// Cache
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		}),

		// Per-source searches
		SourceSearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_started_total",
			Help:      "Total number of per-source searches started",
		}, []string{"source"}),
		SourceSearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_completed_total",
			Help:      "Total number of per-source searches completed",
		}, []string{"source"}),
		SourceSearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_failed_total",
			Help:      "Total number of per-source searches that failed",
		}, []string{"source"}),
		SourceSearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Duration of per-source searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),

		// Source HTTP requests
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// Dedup
		PapersMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_merged_total",
			Help:      "Total number of raw records merged into existing papers",
		}),
		PapersWithoutIdentifier: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_without_identifier_total",
			Help:      "Total number of records deduplicated via fuzzy title matching",
		}),

		// Persistence
		PapersPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_persisted_total",
			Help:      "Total number of papers written by the bulk upsert",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Total number of failed bulk upsert batches",
		}),

		// Enrichment
		EnrichmentBatchesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_batches_produced_total",
			Help:      "Total number of enrichment batches published",
		}),
		EnrichmentBatchesConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_batches_consumed_total",
			Help:      "Total number of enrichment batches consumed",
		}),
		EnrichmentAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_attempts_total",
			Help:      "Total number of enrichment batch attempts by outcome",
		}, []string{"outcome"}),
		EnrichmentBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_batch_duration_seconds",
			Help:      "Duration of enrichment batch processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		PapersEmbedded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_embedded_total",
			Help:      "Total number of papers marked as embedded",
		}),
	}
}

// RecordSearchStarted records that a unified search has started.
func (m *Metrics) RecordSearchStarted() {
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records that a unified search has completed.
func (m *Metrics) RecordSearchCompleted(paperCount int, durationSeconds float64) {
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.PapersPerSearch.Observe(float64(paperCount))
}

// RecordSearchFailed records that a unified search failed entirely.
func (m *Metrics) RecordSearchFailed(durationSeconds float64) {
	m.SearchesFailed.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordCacheHit records a result cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a result cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordSourceSearchStarted records that a per-source search has started.
func (m *Metrics) RecordSourceSearchStarted(source string) {
	m.SourceSearchesStarted.WithLabelValues(source).Inc()
}

// RecordSourceSearchCompleted records that a per-source search has completed.
func (m *Metrics) RecordSourceSearchCompleted(source string, durationSeconds float64) {
	m.SourceSearchesCompleted.WithLabelValues(source).Inc()
	m.SourceSearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSourceSearchFailed records that a per-source search has failed.
func (m *Metrics) RecordSourceSearchFailed(source string, durationSeconds float64) {
	m.SourceSearchesFailed.WithLabelValues(source).Inc()
	m.SourceSearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source, endpoint string) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordPapersMerged records records folded into existing merged papers.
func (m *Metrics) RecordPapersMerged(count int) {
	m.PapersMerged.Add(float64(count))
}

// RecordFuzzyMatch records a dedup decision made by fuzzy title matching.
func (m *Metrics) RecordFuzzyMatch() {
	m.PapersWithoutIdentifier.Inc()
}

// RecordPapersPersisted records papers written by the bulk upsert.
func (m *Metrics) RecordPapersPersisted(count int) {
	m.PapersPersisted.Add(float64(count))
}

// RecordPersistFailure records a failed bulk upsert batch.
func (m *Metrics) RecordPersistFailure() {
	m.PersistFailures.Inc()
}

// RecordEnrichmentBatchProduced records a published enrichment batch.
func (m *Metrics) RecordEnrichmentBatchProduced() {
	m.EnrichmentBatchesProduced.Inc()
}

// RecordEnrichmentAttempt records an enrichment batch attempt with its outcome.
func (m *Metrics) RecordEnrichmentAttempt(outcome string, durationSeconds float64) {
	m.EnrichmentBatchesConsumed.Inc()
	m.EnrichmentAttempts.WithLabelValues(outcome).Inc()
	m.EnrichmentBatchDuration.Observe(durationSeconds)
}

// RecordPapersEmbedded records papers marked as embedded.
func (m *Metrics) RecordPapersEmbedded(count int) {
	m.PapersEmbedded.Add(float64(count))
}
