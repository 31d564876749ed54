package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.Booking.PendingTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, "@every 1m", cfg.Sweeper.Schedule)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BOOKING_PENDING_TIMEOUT", "20m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("BOOKING_RATE_LIMIT", "3")
	t.Setenv("WEBHOOK_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 20*time.Minute, cfg.Booking.PendingTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 3, cfg.Booking.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.Booking.WebhookTimeout)
}
