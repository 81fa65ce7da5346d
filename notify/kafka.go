package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/neuralnotes/neuralnotes/logger"
)

// KafkaConfig configures the Kafka completion sink.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" validate:"required,min=1"`
	Topic   string   `mapstructure:"topic"`
	// Retries bounds write attempts per message.
	Retries      int           `mapstructure:"retries"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ApplyDefaults fills zero fields with sensible values.
func (c *KafkaConfig) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "neuralnotes.completions"
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// KafkaNotifier publishes completions to a Kafka topic, keyed by meeting id
// so per-meeting ordering is preserved.
type KafkaNotifier struct {
	writer *kafkago.Writer
	cfg    KafkaConfig
	log    *logger.Logger
	mu     sync.RWMutex
	closed bool
}

// NewKafkaNotifier creates the sink. The writer connects lazily, so the
// broker does not need to be reachable at startup.
func NewKafkaNotifier(cfg KafkaConfig, log *logger.Logger) (*KafkaNotifier, error) {
	cfg.ApplyDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("notify: kafka brokers required")
	}

	n := &KafkaNotifier{cfg: cfg, log: log.WithComponent("notify.kafka")}
	n.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireOne,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			n.log.Error("writer: "+msg, logger.Fields("args", fmt.Sprintf("%v", args)))
		}),
	}

	n.log.Info("kafka notifier initialized", logger.Fields(
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	))
	return n, nil
}

// NotifyCompletion publishes the completion payload as JSON.
func (n *KafkaNotifier) NotifyCompletion(ctx context.Context, c Completion) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return fmt.Errorf("notify: kafka notifier is closed")
	}
	n.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("notify: marshal completion: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(c.MeetingID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.Retries; attempt++ {
		if err := n.writer.WriteMessages(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < n.cfg.Retries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
				}
			}
		}
	}
	return fmt.Errorf("notify: write after %d attempts: %w", n.cfg.Retries, lastErr)
}

// Close shuts down the writer. Safe to call more than once.
func (n *KafkaNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
