package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/embedding"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/qdrant"
)

// Worker defaults when the config leaves values unset.
const (
	DefaultWorkers      = 4
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 2 * time.Second

	// defaultReadBackoff spaces out retries when the Kafka read itself keeps
	// failing, so a broker outage does not spin the consume loop.
	defaultReadBackoff = time.Second
)

// Attempt outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeRetry   = "retry"
	outcomeFailure = "failure"
)

// PaperStore is the slice of the repository the worker needs.
type PaperStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error)
	MarkEmbedded(ctx context.Context, ids []uuid.UUID) error
}

// VectorWriter stores paper embeddings.
type VectorWriter interface {
	UpsertBatch(ctx context.Context, points []qdrant.PaperPoint) error
}

// batchReader is the kafka reader surface the worker uses.
type batchReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Worker consumes enrichment batches, embeds the papers in one batched call,
// writes the vectors, and marks the papers embedded. A bounded pool of
// goroutines processes batches concurrently.
type Worker struct {
	reader      batchReader
	store       PaperStore
	vectors     VectorWriter
	embedder    embedding.Embedder
	cfg         config.EnrichmentConfig
	readBackoff time.Duration
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewWorker creates an enrichment worker consuming from the configured topic.
func NewWorker(
	kafkaCfg config.KafkaConfig,
	cfg config.EnrichmentConfig,
	store PaperStore,
	vectors VectorWriter,
	embedder embedding.Embedder,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkaCfg.Brokers,
		Topic:    kafkaCfg.Topic,
		GroupID:  kafkaCfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	return newWorker(reader, cfg, store, vectors, embedder, metrics, logger)
}

func newWorker(
	reader batchReader,
	cfg config.EnrichmentConfig,
	store PaperStore,
	vectors VectorWriter,
	embedder embedding.Embedder,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	return &Worker{
		reader:      reader,
		store:       store,
		vectors:     vectors,
		embedder:    embedder,
		cfg:         cfg,
		readBackoff: defaultReadBackoff,
		metrics:     metrics,
		logger:      logger.With().Str("component", "enrichment_worker").Logger(),
	}
}

// Run consumes batches until the context is cancelled. In-flight batches
// finish before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("workers", w.cfg.Workers).Msg("starting enrichment worker")

	slots := make(chan struct{}, w.cfg.Workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("enrichment worker stopped via context cancellation")
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("failed to read enrichment batch from Kafka")
			select {
			case <-time.After(w.readBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		var batch Batch
		if err := json.Unmarshal(msg.Value, &batch); err != nil {
			w.logger.Error().Err(err).
				Int64("offset", msg.Offset).
				Msg("failed to unmarshal enrichment batch, skipping")
			continue
		}
		if len(batch.PaperIDs) == 0 {
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		wg.Add(1)
		go func(batch Batch) {
			defer wg.Done()
			defer func() { <-slots }()
			w.processBatch(ctx, batch)
		}(batch)
	}
}

// processBatch runs the embed-store-mark sequence with retries. The backoff
// doubles each attempt.
func (w *Worker) processBatch(ctx context.Context, batch Batch) {
	backoff := w.cfg.RetryBackoff

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		embedded, err := w.enrichOnce(ctx, batch.PaperIDs)
		duration := time.Since(start).Seconds()

		if err == nil {
			w.metrics.RecordEnrichmentAttempt(outcomeSuccess, duration)
			w.metrics.RecordPapersEmbedded(embedded)
			w.logger.Info().
				Int("papers", embedded).
				Int("attempt", attempt).
				Msg("enrichment batch completed")
			return
		}

		if attempt == w.cfg.MaxAttempts {
			w.metrics.RecordEnrichmentAttempt(outcomeFailure, duration)
			w.logger.Error().Err(err).
				Int("papers", len(batch.PaperIDs)).
				Int("attempts", attempt).
				Msg("enrichment batch abandoned")
			return
		}

		w.metrics.RecordEnrichmentAttempt(outcomeRetry, duration)
		w.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("enrichment attempt failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}
}

// enrichOnce embeds the batch's still-unembedded papers in one call, writes
// the vectors, and marks the papers embedded. It returns the number of
// papers embedded.
func (w *Worker) enrichOnce(ctx context.Context, ids []uuid.UUID) (int, error) {
	papers, err := w.store.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	// Papers embedded by a concurrent batch are skipped, so redelivered
	// messages are harmless.
	pending := papers[:0]
	for _, p := range papers {
		if !p.IsEmbedded {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = embeddingText(p)
	}

	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	points := make([]qdrant.PaperPoint, len(pending))
	for i, p := range pending {
		points[i] = qdrant.PaperPoint{
			PaperID:   p.ID,
			Embedding: vectors[i],
			Category:  string(p.Category),
		}
	}
	if err := w.vectors.UpsertBatch(ctx, points); err != nil {
		return 0, err
	}

	embeddedIDs := make([]uuid.UUID, len(pending))
	for i, p := range pending {
		embeddedIDs[i] = p.ID
	}
	if err := w.store.MarkEmbedded(ctx, embeddedIDs); err != nil {
		return 0, err
	}

	return len(pending), nil
}

// embeddingText builds the text embedded for a paper.
func embeddingText(p *domain.Paper) string {
	if p.Abstract == "" {
		return p.Title
	}
	return strings.TrimSpace(p.Title + "\n\n" + p.Abstract)
}

// Close closes the Kafka reader.
func (w *Worker) Close() error {
	return w.reader.Close()
}
