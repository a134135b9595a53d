// Package ingest publishes provider location pings to the Kafka topic the
// location consumer drains into the Redis geo index.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/roadside-dispatch/internal/models"
)

// Config carries the producer tunables wired from the server config.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

type KafkaProducer struct {
	writer       *kafka.Writer
	writeTimeout time.Duration
}

func NewKafkaProducer(cfg Config) *KafkaProducer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{writer: w, writeTimeout: cfg.WriteTimeout}
}

// PublishLocation keys the message by provider id so each provider's pings
// land on one partition and stay ordered.
func (k *KafkaProducer) PublishLocation(ctx context.Context, p models.Provider) error {
	ctx, cancel := context.WithTimeout(ctx, k.writeTimeout)
	defer cancel()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.ID),
		Value: b,
		Time:  time.Now(),
	})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
