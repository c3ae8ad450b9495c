package main

import (
	"log/slog"

	"racereg/internal/platform/config"
	audit "racereg/pkg/platform/audit"
	"racereg/pkg/platform/audit/outbox"
	auditkafka "racereg/pkg/platform/audit/store/kafka"
	auditmemory "racereg/pkg/platform/audit/store/memory"
	auditpg "racereg/pkg/platform/audit/store/postgres"
)

// newAuditSink picks where audit events go:
//   - postgres outbox, relayed to Kafka when brokers are configured
//   - Kafka directly when there is no database
//   - process memory otherwise
//
// The relay is nil unless both postgres and Kafka are available.
func newAuditSink(deps *infra, cfg config.KafkaConfig, log *slog.Logger) (audit.Store, *outbox.Relay) {
	switch {
	case deps.db != nil:
		store := auditpg.New(deps.db)
		if deps.kafka == nil {
			log.Info("audit events kept in postgres outbox, no kafka relay")
			return store, nil
		}
		return store, outbox.NewRelay(store, deps.kafka, cfg.AuditTopic, cfg.RelayInterval, cfg.RelayBatchSize, log)
	case deps.kafka != nil:
		return auditkafka.New(deps.kafka, cfg.AuditTopic), nil
	default:
		log.Warn("audit events kept in memory only")
		return auditmemory.NewInMemoryStore(), nil
	}
}
