package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the slice of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka notifier.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaNotifier publishes each alert as a JSON message keyed by kind, so
// signal and error alerts land in stable partitions.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

// NewKafkaNotifier creates a synchronous producer for cfg.Topic.
func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    1,
	}
	return &KafkaNotifier{writer: w, topic: cfg.Topic}, nil
}

func (k *KafkaNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.TS.IsZero() {
		alert.TS = time.Now().UTC()
	}
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.Kind),
		Value: value,
		Time:  alert.TS,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", k.topic, err)
	}
	log.Printf("[kafka] published %s alert to %s", alert.Kind, k.topic)
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
