package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEvents publishes outbound domain events for collaborators that
// consume asynchronously (notifications, loyalty, billing).
type KafkaEvents struct {
	writer *kafka.Writer
}

func NewKafkaEvents(brokers []string, topic string) *KafkaEvents {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaEvents{writer: w}
}

func (k *KafkaEvents) Publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RequestID), Value: b})
}

func (k *KafkaEvents) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
