package ingest

import (
	"testing"
	"time"
)

func TestNewKafkaProducerDefaults(t *testing.T) {
	p := NewKafkaProducer(Config{Brokers: []string{"localhost:9092"}, Topic: "provider-locations"})
	defer p.Close()

	if p.writeTimeout != 2*time.Second {
		t.Fatalf("expected default write timeout, got %s", p.writeTimeout)
	}
	if p.writer.Topic != "provider-locations" {
		t.Fatalf("unexpected topic %q", p.writer.Topic)
	}
	if p.writer.BatchTimeout != 100*time.Millisecond {
		t.Fatalf("expected default batch timeout, got %s", p.writer.BatchTimeout)
	}
}

func TestNewKafkaProducerHonorsConfig(t *testing.T) {
	p := NewKafkaProducer(Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "provider-locations",
		WriteTimeout: 5 * time.Second,
		BatchTimeout: time.Second,
	})
	defer p.Close()

	if p.writeTimeout != 5*time.Second || p.writer.BatchTimeout != time.Second {
		t.Fatalf("config not applied: write=%s batch=%s", p.writeTimeout, p.writer.BatchTimeout)
	}
}
