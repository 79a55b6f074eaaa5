package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// KafkaConfig configures the audit mirror.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is per attempt. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes brain-log entries keyed by lead id, so every decision for a
// lead lands on the same partition in order.
type KafkaSink struct {
	writer       messageWriter
	topic        string
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	logger       *slog.Logger
}

func NewKafkaSink(cfg KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaSink(w, cfg, logger), nil
}

func newKafkaSink(w messageWriter, cfg KafkaConfig, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:       w,
		topic:        cfg.Topic,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		backoff:      100 * time.Millisecond,
		logger:       logger,
	}
}

// Record produces entry as JSON, retrying with exponential backoff.
func (s *KafkaSink) Record(ctx context.Context, entry *store.BrainLog) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal brain log: %w", err)
	}
	key := entry.CompanyID.String()
	if entry.LeadID != nil {
		key = entry.LeadID.String()
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}

	var lastErr error
	backoff := s.backoff
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		msg.Time = time.Now().UTC()
		attemptCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		err := s.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Debug("audit produce failed", "topic", s.topic, "attempt", attempt, "error", err)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("produce to %s: %w", s.topic, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce to %s failed after %d attempts: %w", s.topic, s.maxAttempts, lastErr)
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
