//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"racereg/internal/platform/config"
	"racereg/internal/platform/kafka"
	audit "racereg/pkg/platform/audit"
	kafkastore "racereg/pkg/platform/audit/store/kafka"
	"racereg/pkg/testutil/containers"
)

func TestAuditStreamRoundTrip(t *testing.T) {
	broker := containers.GetManager().GetRedpanda(t)
	cfg := config.KafkaConfig{
		Brokers:           []string{broker.Broker},
		AuditTopic:        "racereg.audit.it",
		ClientID:          "racereg-it",
		Partitions:        1,
		ReplicationFactor: 1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kafka.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	require.NoError(t, kafka.Ping(ctx, client))
	require.NoError(t, kafka.EnsureTopic(ctx, client, cfg))
	require.NoError(t, kafka.EnsureTopic(ctx, client, cfg), "existing topic is not an error")

	store := kafkastore.New(client, cfg.AuditTopic)
	require.NoError(t, store.Append(ctx, audit.Event{
		Subject: "reg-42",
		Action:  string(audit.EventPaymentSignatureInvalid),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	record := records[0]
	assert.Equal(t, "reg-42", string(record.Key))
	var event audit.Event
	require.NoError(t, json.Unmarshal(record.Value, &event))
	assert.Equal(t, string(audit.EventPaymentSignatureInvalid), event.Action)
	assert.NotEmpty(t, event.ID)
}

func TestNewWithoutBrokers(t *testing.T) {
	client, err := kafka.New(config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
