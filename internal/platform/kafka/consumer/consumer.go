// Package consumer reads records with confluent-kafka-go and hands them to a
// Handler, committing only after the handler succeeds.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Message is a received record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes a message. A returned error skips the commit so the
// record is redelivered.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

type Config struct {
	Brokers         []string
	GroupID         string
	Topics          []string
	AutoOffsetReset string
	PollTimeout     time.Duration
}

type Consumer struct {
	consumer *kafka.Consumer
	handler  Handler
	logger   *slog.Logger
	cfg      Config
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer topics not configured")
	}
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "latest"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  cfg.AutoOffsetReset,
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{consumer: c, handler: handler, logger: logger, cfg: cfg}, nil
}

// Run subscribes and polls until ctx ends, then closes the consumer.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.consumer.SubscribeTopics(c.cfg.Topics, nil); err != nil {
		c.consumer.Close() //nolint:errcheck // closing after failed subscribe
		return fmt.Errorf("subscribe to topics: %w", err)
	}
	c.logger.InfoContext(ctx, "kafka consumer started", "topics", c.cfg.Topics, "group", c.cfg.GroupID)

	for ctx.Err() == nil {
		c.poll(ctx)
	}
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close kafka consumer: %w", err)
	}
	return nil
}

func (c *Consumer) poll(ctx context.Context) {
	ev := c.consumer.Poll(int(c.cfg.PollTimeout.Milliseconds()))
	switch e := ev.(type) {
	case nil:
	case *kafka.Message:
		c.handleMessage(ctx, e)
	case kafka.Error:
		if e.Code() != kafka.ErrTimedOut {
			c.logger.ErrorContext(ctx, "kafka consumer error", "code", e.Code(), "error", e.Error())
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, km *kafka.Message) {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	topic := ""
	if km.TopicPartition.Topic != nil {
		topic = *km.TopicPartition.Topic
	}
	msg := &Message{
		Topic:     topic,
		Partition: km.TopicPartition.Partition,
		Offset:    int64(km.TopicPartition.Offset),
		Key:       km.Key,
		Value:     km.Value,
		Headers:   headers,
		Timestamp: km.Timestamp,
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "failed to handle message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	if _, err := c.consumer.CommitMessage(km); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit offset",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
	}
}
