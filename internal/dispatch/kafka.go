package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaPublisher dispatches task requests onto a single topic, keyed by
// providerId so a per-provider consumer group can claim only its own
// partitions.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher opens a writer against brokers for topic. Callers
// must call Close when done.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Dispatch publishes req as a JSON message keyed by ProviderID.
func (p *KafkaPublisher) Dispatch(ctx context.Context, req TaskRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal task request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(req.ProviderID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write task request to kafka: %w", err)
	}

	return nil
}

// Close releases the underlying writer's connections.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
