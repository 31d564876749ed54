package payment

import (
	"bytes"
	"errors"
	"testing"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestNewStripeProcessor_RequiresKey(t *testing.T) {
	p, err := NewStripeProcessor("", logger.New(&bytes.Buffer{}))

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrProcessorNotConfigured)
}

func TestIntentUsable(t *testing.T) {
	tests := []struct {
		status stripe.PaymentIntentStatus
		usable bool
	}{
		{stripe.PaymentIntentStatusRequiresPaymentMethod, true},
		{stripe.PaymentIntentStatusRequiresAction, true},
		{stripe.PaymentIntentStatusProcessing, true},
		{stripe.PaymentIntentStatusSucceeded, false},
		{stripe.PaymentIntentStatusCanceled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.usable, (&Intent{Status: tt.status}).Usable())
		})
	}
}

func TestToIntent_ReadsBookingMetadata(t *testing.T) {
	intent := toIntent(&stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusProcessing,
		Amount:       2760,
		Currency:     stripe.CurrencyUSD,
		Metadata:     map[string]string{bookingMetadataKey: "booking-1"},
	})

	assert.Equal(t, "booking-1", intent.BookingID)
	assert.Equal(t, models.Money(2760), intent.Amount)
	assert.Equal(t, "usd", intent.Currency)
}

func TestUpstream_WrapsProcessorError(t *testing.T) {
	err := upstream("refund", errors.New("card_declined"))

	assert.ErrorIs(t, err, models.ErrUpstreamProcessor)
	assert.Contains(t, err.Error(), "refund: card_declined")
}
