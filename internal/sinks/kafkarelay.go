package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaRelay wraps a segmentio/kafka-go Writer as the fan-out's optional,
// non-authoritative fourth sink. It never blocks an audit append: a publish
// failure is logged by the caller and otherwise ignored.
type KafkaRelay struct {
	writer      *kafka.Writer
	maxAttempts int
}

// KafkaRelayConfig configures the relay's brokers/topic/retry behavior.
type KafkaRelayConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int           // defaults to 3 if <= 0
	WriteTimeout time.Duration // defaults to 10s if zero
}

// NewKafkaRelay constructs a KafkaRelay, or returns an error if brokers/topic
// are missing.
func NewKafkaRelay(cfg KafkaRelayConfig) (*KafkaRelay, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka relay: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka relay: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaRelay{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// Publish writes value keyed by key, retrying transient errors with a capped
// exponential backoff, same shape as the teacher's audit producer.
func (k *KafkaRelay) Publish(ctx context.Context, key []byte, value []byte) error {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		msg := kafka.Message{Key: key, Value: value, Time: time.Now().UTC()}

		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := k.writer.WriteMessages(attemptCtx, msg)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}

	return fmt.Errorf("relay publish failed after %d attempts: %w", k.maxAttempts, lastErr)
}

// Close releases the underlying writer.
func (k *KafkaRelay) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
