package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

const handlerAttempts = 3

// Handler processes one message value. Returning an error causes a retry.
type Handler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Run fetches messages until ctx is cancelled. An offset is committed only
// after the handler succeeded or gave up, so delivery is at-least-once.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	topic := c.reader.Config().Topic
	c.log.LogKafka("CONSUME", topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, handle, msg); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Dropping message at offset %d on %s after %d attempts: %v", msg.Offset, topic, handlerAttempts, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, topic, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handle Handler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = handle(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		c.log.Warn("KAFKA", fmt.Sprintf("Handler attempt %d failed for offset %d: %v", attempt, msg.Offset, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return err
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
