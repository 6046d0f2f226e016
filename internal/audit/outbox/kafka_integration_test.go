//go:build integration

package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"profileclaim/internal/audit/outbox"
	"profileclaim/internal/store"
	"profileclaim/pkg/testutil/containers"
)

func TestKafkaPublisherDeliversKeyedRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t)
	topic := "admin-audit-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pub, err := outbox.NewKafkaPublisher(broker.Brokers, topic)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1))
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	msg := store.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: "ClaimRequest",
		AggregateID:   uuid.NewString(),
		EventType:     "CLAIM_APPROVED",
		Payload:       []byte(`{"action":"CLAIM_APPROVED"}`),
		CreatedAt:     time.Now(),
	}
	accepted, err := pub.Publish(ctx, []store.OutboxMessage{msg})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{msg.ID}, accepted)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, msg.AggregateID, string(records[0].Key))
	assert.JSONEq(t, string(msg.Payload), string(records[0].Value))
}
