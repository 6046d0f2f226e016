package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"profileclaim/internal/store"
)

const (
	headerEventType     = "event_type"
	headerAggregateType = "aggregate_type"
	headerOutboxID      = "outbox_id"
)

// KafkaPublisher produces outbox messages to one topic, keyed by aggregate
// ID so every entry about one claim lands on the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string, opts ...kgo.Opt) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish produces msgs synchronously and returns the IDs the brokers
// acknowledged. The error reports the first failed record, if any.
func (p *KafkaPublisher) Publish(ctx context.Context, msgs []store.OutboxMessage) ([]uuid.UUID, error) {
	records := make([]*kgo.Record, len(msgs))
	byRecord := make(map[*kgo.Record]uuid.UUID, len(msgs))
	for i, m := range msgs {
		rec := &kgo.Record{
			Key:   []byte(m.AggregateID),
			Value: m.Payload,
			Headers: []kgo.RecordHeader{
				{Key: headerEventType, Value: []byte(m.EventType)},
				{Key: headerAggregateType, Value: []byte(m.AggregateType)},
				{Key: headerOutboxID, Value: []byte(m.ID.String())},
			},
			Timestamp: m.CreatedAt,
		}
		records[i] = rec
		byRecord[rec] = m.ID
	}

	results := p.client.ProduceSync(ctx, records...)
	accepted := make([]uuid.UUID, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			accepted = append(accepted, byRecord[res.Record])
		}
	}
	if err := results.FirstErr(); err != nil {
		return accepted, fmt.Errorf("produce audit events: %w", err)
	}
	return accepted, nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
