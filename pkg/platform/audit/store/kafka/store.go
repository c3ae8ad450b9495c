// Package kafka publishes audit events straight to a Kafka topic. It is used
// when no database outbox is available.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "racereg/pkg/platform/audit"
)

// HeaderCategory carries the event category so consumers can route without
// decoding the payload.
const HeaderCategory = "category"

// Producer is the subset of *kgo.Client used here.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

// Append produces the event synchronously, keyed by subject so all events for
// one registration land on one partition in order.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := NewRecord(s.topic, event.Subject, string(event.Category), payload)
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// NewRecord builds an audit record.
func NewRecord(topic, key, category string, payload []byte) *kgo.Record {
	r := &kgo.Record{
		Topic: topic,
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderCategory, Value: []byte(category)},
		},
	}
	if key != "" {
		r.Key = []byte(key)
	}
	return r
}
