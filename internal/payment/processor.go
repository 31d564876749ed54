package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const bookingMetadataKey = "booking_id"

var ErrProcessorNotConfigured = errors.New("payment processor is not configured")

// Intent is the processor's view of a payment for one booking.
type Intent struct {
	ID           string
	ClientSecret string
	Status       stripe.PaymentIntentStatus
	Amount       models.Money
	Currency     string
	BookingID    string
}

// Usable reports whether the driver can still pay against the intent.
func (i *Intent) Usable() bool {
	return i.Status != stripe.PaymentIntentStatusCanceled && i.Status != stripe.PaymentIntentStatusSucceeded
}

type Processor interface {
	CreateIntent(ctx context.Context, bookingID string, amount models.Money, currency string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
	Refund(ctx context.Context, id string) error
}

// StripeProcessor talks to Stripe through a per-service client.
type StripeProcessor struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProcessor(secretKey string, log *logger.Logger) (*StripeProcessor, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrProcessorNotConfigured
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeProcessor{client: sc, log: log}, nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrUpstreamProcessor, op, err)
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       pi.Status,
		Amount:       models.Money(pi.Amount),
		Currency:     string(pi.Currency),
		BookingID:    pi.Metadata[bookingMetadataKey],
	}
}

func (s *StripeProcessor) CreateIntent(ctx context.Context, bookingID string, amount models.Money, currency string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(bookingMetadataKey, bookingID)

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", bookingID, err))
		return nil, upstream("create intent", err)
	}
	s.log.LogPayment("INTENT_CREATED", pi.ID, fmt.Sprintf("booking %s, %s %s", bookingID, amount, currency))
	return toIntent(pi), nil
}

func (s *StripeProcessor) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, upstream("retrieve intent", err)
	}
	return toIntent(pi), nil
}

func (s *StripeProcessor) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := s.client.PaymentIntents.Cancel(id, params); err != nil {
		return upstream("cancel intent", err)
	}
	s.log.LogPayment("INTENT_CANCELLED", id, "payment intent cancelled")
	return nil
}

// Refund refunds the full amount captured on intent id. A payment that is
// already refunded counts as success.
func (s *StripeProcessor) Refund(ctx context.Context, id string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(id)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + id)

	if _, err := s.client.Refunds.New(params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return nil
		}
		s.log.Error("STRIPE", fmt.Sprintf("Refund for %s failed: %v", id, err))
		return upstream("refund", err)
	}
	s.log.LogPayment("REFUNDED", id, "refund requested")
	return nil
}
