// Package notify hands booking notifications and emails off to a pipeline
// instead of sending them in the request path. A transition that changed a row
// enqueues its messages once; the dispatcher at the other end inserts a
// notification row keyed by (booking, kind, recipient) and only sends the
// email when that row is new, so redelivery never double-sends.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

var ErrQueueFull = errors.New("notification queue is full")

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Enqueue(ctx context.Context, msgs ...models.NotificationMessage) error
}

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaNotifier publishes each message keyed by booking id.
type KafkaNotifier struct {
	Producer Publisher
	Topic    string
	Log      *logger.Logger
}

func NewKafkaNotifier(producer Publisher, topic string, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{Producer: producer, Topic: topic, Log: log}
}

func (k *KafkaNotifier) Enqueue(ctx context.Context, msgs ...models.NotificationMessage) error {
	var errs []error
	for _, msg := range msgs {
		value, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal notification %s: %w", msg.Notification.DedupeKey, err))
			continue
		}
		if err := k.Producer.Publish(ctx, k.Topic, msg.Notification.BookingID, value); err != nil {
			errs = append(errs, fmt.Errorf("publish notification %s: %w", msg.Notification.DedupeKey, err))
			continue
		}
		k.Log.LogKafka("PUBLISH", k.Topic, msg.Notification.DedupeKey)
	}
	return errors.Join(errs...)
}

// QueueNotifier is the in-process pipeline used when Kafka is disabled. Run
// drains it into the dispatcher.
type QueueNotifier struct {
	queue      chan models.NotificationMessage
	dispatcher *Dispatcher
	log        *logger.Logger
}

func NewQueueNotifier(size int, dispatcher *Dispatcher, log *logger.Logger) *QueueNotifier {
	return &QueueNotifier{
		queue:      make(chan models.NotificationMessage, size),
		dispatcher: dispatcher,
		log:        log,
	}
}

// Enqueue never blocks; a full queue drops the message and reports it.
func (q *QueueNotifier) Enqueue(ctx context.Context, msgs ...models.NotificationMessage) error {
	for _, msg := range msgs {
		select {
		case q.queue <- msg:
		default:
			q.log.Error("NOTIFY", fmt.Sprintf("Queue full, dropping %s", msg.Notification.DedupeKey))
			return ErrQueueFull
		}
	}
	return nil
}

// Run processes queued messages until ctx is cancelled.
func (q *QueueNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.queue:
			if err := q.dispatcher.Handle(ctx, msg); err != nil {
				q.log.Error("NOTIFY", fmt.Sprintf("Failed to dispatch %s: %v", msg.Notification.DedupeKey, err))
			}
		}
	}
}
