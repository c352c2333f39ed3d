// Package enrich implements the background embedding enrichment pipeline.
// The search service schedules batches of unembedded paper ids onto a Kafka
// topic; a pool of workers consumes them, embeds the papers, stores the
// vectors, and marks the papers embedded.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/observability"
)

// DefaultBatchSize is the maximum number of paper ids per batch when the
// config leaves it unset.
const DefaultBatchSize = 100

// Batch is the wire format of one enrichment batch.
type Batch struct {
	PaperIDs    []uuid.UUID `json:"paper_ids"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}

// messageWriter is the kafka writer surface the scheduler uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Scheduler produces enrichment batches onto the Kafka topic. It satisfies
// the search service's EnrichmentScheduler.
type Scheduler struct {
	writer    messageWriter
	batchSize int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler producing to the configured topic.
func NewScheduler(cfg config.KafkaConfig, batchSize int, metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Scheduler{
		writer:    writer,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger.With().Str("component", "enrichment_scheduler").Logger(),
	}
}

// Schedule splits the ids into batches and produces one message per batch.
func (s *Scheduler) Schedule(ctx context.Context, paperIDs []uuid.UUID) error {
	if len(paperIDs) == 0 {
		return nil
	}

	var messages []kafka.Message
	for start := 0; start < len(paperIDs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(paperIDs) {
			end = len(paperIDs)
		}

		batch := Batch{
			PaperIDs:    paperIDs[start:end],
			ScheduledAt: time.Now().UTC(),
		}
		value, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("enrich: failed to marshal batch: %w", err)
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(batch.PaperIDs[0].String()),
			Value: value,
		})
	}

	if err := s.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("enrich: failed to produce batches: %w", err)
	}

	for range messages {
		s.metrics.RecordEnrichmentBatchProduced()
	}
	s.logger.Debug().
		Int("papers", len(paperIDs)).
		Int("batches", len(messages)).
		Msg("enrichment batches scheduled")

	return nil
}

// Close flushes and closes the underlying writer.
func (s *Scheduler) Close() error {
	return s.writer.Close()
}
