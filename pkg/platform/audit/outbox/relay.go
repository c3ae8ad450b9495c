// Package outbox moves audit events from the postgres outbox to Kafka.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	auditpg "racereg/pkg/platform/audit/store/postgres"
	auditkafka "racereg/pkg/platform/audit/store/kafka"
)

// Source yields batches of unpublished entries. ClaimBatch marks a batch
// published only when publish returns nil.
type Source interface {
	ClaimBatch(ctx context.Context, limit int, publish func(ctx context.Context, entries []auditpg.Entry) error) (int, error)
}

// Relay polls the outbox and produces each batch to Kafka.
type Relay struct {
	source    Source
	producer  auditkafka.Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(source Source, producer auditkafka.Producer, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run relays until ctx ends. A full batch is followed immediately by the next
// one; otherwise the relay sleeps for its interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
		}
		if n == r.batchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns how many entries it moved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.source.ClaimBatch(ctx, r.batchSize, func(ctx context.Context, entries []auditpg.Entry) error {
		records := make([]*kgo.Record, 0, len(entries))
		for _, e := range entries {
			records = append(records, auditkafka.NewRecord(r.topic, e.Key, e.Category, e.Payload))
		}
		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox batch: %w", err)
		}
		return nil
	})
}
