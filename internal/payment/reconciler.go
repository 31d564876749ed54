package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// Store is the part of the booking store the reconciler drives. Every
// mutation is a guarded transition keyed by payment reference.
type Store interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	AttachPaymentReference(ctx context.Context, id, ref string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, ref string) (*models.Booking, bool, error)
	MarkPaymentFailed(ctx context.Context, ref string) (*models.Booking, bool, error)
	RefundPayment(ctx context.Context, ref string) (*models.Booking, bool, error)
	RecordRefund(ctx context.Context, ref string) (*models.Booking, bool, error)
}

// Reconciler aligns booking state with the processor. The webhook is
// authoritative; Verify only shortens the wait after checkout.
type Reconciler struct {
	Store         Store
	Processor     Processor
	Notifier      notify.Notifier
	WebhookSecret string
	Log           *logger.Logger
}

func NewReconciler(store Store, processor Processor, notifier notify.Notifier, webhookSecret string, log *logger.Logger) *Reconciler {
	return &Reconciler{
		Store:         store,
		Processor:     processor,
		Notifier:      notifier,
		WebhookSecret: webhookSecret,
		Log:           log,
	}
}

func (r *Reconciler) notify(ctx context.Context, b *models.Booking, msgs []models.NotificationMessage) {
	if err := r.Notifier.Enqueue(ctx, msgs...); err != nil {
		r.Log.Error("NOTIFY", fmt.Sprintf("Failed to enqueue notifications for booking %s: %v", b.ID, err))
	}
}

// ---------------- WEBHOOK ----------------

// HandleWebhook verifies the signature over the raw payload before touching
// the store, then applies the event. Only signature and store failures are
// returned; business no-ops are logged and acknowledged.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if r.WebhookSecret == "" {
		r.Log.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.WebhookSecret, opts)
	if err != nil {
		r.Log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   fmt.Errorf("%w: %v", models.ErrSignature, err),
		}
	}

	r.Log.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s: %s", event.ID, event.Type))

	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			r.Log.Warn("WEBHOOK", fmt.Sprintf("Event %s carries no usable payment intent", event.ID))
			return nil
		}
		if event.Type == EventPaymentSucceeded {
			err = r.paymentSucceeded(ctx, pi.ID)
		} else {
			err = r.paymentFailed(ctx, pi.ID)
		}
	case EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil || charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			r.Log.Warn("WEBHOOK", fmt.Sprintf("Refund event %s carries no payment intent", event.ID))
			return nil
		}
		err = r.chargeRefunded(ctx, charge.PaymentIntent.ID)
	default:
		r.Log.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
		return nil
	}

	if err == nil || errors.Is(err, models.ErrNotFound) {
		if err != nil {
			r.Log.Warn("WEBHOOK", fmt.Sprintf("Event %s: %v", event.ID, err))
		}
		return nil
	}
	return &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Failed to process webhook event",
		InternalError: fmt.Sprintf("Failed to process event %s (%s): %v", event.ID, event.Type, err),
		OriginalErr:   err,
	}
}

func (r *Reconciler) paymentSucceeded(ctx context.Context, ref string) error {
	b, changed, err := r.confirm(ctx, ref)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	switch b.Status {
	case models.BookingConfirmed, models.BookingCompleted:
		r.Log.LogPayment("REPLAY", ref, fmt.Sprintf("booking %s already %s", b.ID, b.Status))
		return nil
	case models.BookingCancelled, models.BookingExpired:
		if b.PaymentStatus == models.PaymentRefunded {
			return nil
		}
		return r.refundLatePayment(ctx, b, ref)
	}
	return nil
}

// confirm applies PENDING → CONFIRMED and notifies both parties only when
// this call made the change.
func (r *Reconciler) confirm(ctx context.Context, ref string) (*models.Booking, bool, error) {
	b, changed, err := r.Store.ConfirmPayment(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	if changed {
		r.Log.LogBooking("CONFIRMED", b.ID, fmt.Sprintf("payment %s succeeded", ref))
		r.notify(ctx, b, notify.Confirmed(b))
	}
	return b, changed, nil
}

// refundLatePayment returns money taken for a booking that was already
// cancelled or expired when the payment landed.
func (r *Reconciler) refundLatePayment(ctx context.Context, b *models.Booking, ref string) error {
	r.Log.Warn("WEBHOOK", fmt.Sprintf("Payment %s succeeded for %s booking %s, refunding", ref, b.Status, b.ID))
	if err := r.Processor.Refund(ctx, ref); err != nil {
		return err
	}
	updated, changed, err := r.Store.RecordRefund(ctx, ref)
	if err != nil {
		return err
	}
	if changed {
		r.notify(ctx, updated, notify.Refunded(updated))
	}
	return nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, ref string) error {
	b, changed, err := r.Store.MarkPaymentFailed(ctx, ref)
	if err != nil {
		return err
	}
	if !changed {
		r.Log.LogPayment("FAILED_IGNORED", ref, fmt.Sprintf("booking %s is %s/%s", b.ID, b.Status, b.PaymentStatus))
		return nil
	}
	r.Log.LogBooking("PAYMENT_FAILED", b.ID, fmt.Sprintf("payment %s failed, booking kept pending", ref))
	r.notify(ctx, b, notify.PaymentFailed(b))
	return nil
}

func (r *Reconciler) chargeRefunded(ctx context.Context, ref string) error {
	b, changed, err := r.Store.RefundPayment(ctx, ref)
	if err != nil {
		return err
	}
	if changed {
		r.Log.LogBooking("REFUNDED", b.ID, fmt.Sprintf("payment %s refunded", ref))
		r.notify(ctx, b, notify.Refunded(b))
		return nil
	}
	if b.Status == models.BookingCompleted {
		r.Log.Warn("WEBHOOK", fmt.Sprintf("Refund %s targets completed booking %s, left unchanged", ref, b.ID))
		return nil
	}
	// refunds we issued ourselves after a cancel or late payment
	if _, _, err := r.Store.RecordRefund(ctx, ref); err != nil {
		return err
	}
	return nil
}

// ---------------- VERIFY ----------------

// Verify checks the processor right after client-side confirmation. It never
// returns an error: anything it cannot settle is left to the webhook.
func (r *Reconciler) Verify(ctx context.Context, driverID string, req models.VerifyRequest) models.VerifyResponse {
	pending := func(msg string) models.VerifyResponse {
		return models.VerifyResponse{BookingID: req.BookingID, Status: models.VerifyPending, Message: msg}
	}

	b, err := r.Store.GetBookingByID(ctx, req.BookingID)
	if err != nil {
		r.Log.Warn("VERIFY", fmt.Sprintf("Lookup of booking %s failed: %v", req.BookingID, err))
		return pending("Payment received. Your booking will be confirmed shortly.")
	}
	if b.DriverID != driverID {
		r.Log.LogSecurity("VERIFY_FORBIDDEN", fmt.Sprintf("user %s verified booking %s they do not own", driverID, b.ID))
		return pending("Payment received. Your booking will be confirmed shortly.")
	}
	if b.Status == models.BookingConfirmed || b.Status == models.BookingCompleted {
		return models.VerifyResponse{BookingID: b.ID, Status: models.VerifyConfirmed, Message: "Booking confirmed.", Booking: b}
	}
	if b.Status.IsTerminal() {
		return pending(fmt.Sprintf("This booking is %s. Any payment taken will be refunded.", b.Status))
	}

	ref := req.PaymentReference
	if ref == "" {
		ref = b.PaymentReference
	}
	if ref == "" {
		return pending("No payment has been started for this booking.")
	}
	if b.PaymentReference != "" && b.PaymentReference != ref {
		r.Log.Warn("VERIFY", fmt.Sprintf("%v: booking %s has %s, got %s", models.ErrPaymentReferenceMismatch, b.ID, b.PaymentReference, ref))
		return pending("Payment reference does not match this booking.")
	}

	intent, err := r.Processor.RetrieveIntent(ctx, ref)
	if err != nil {
		r.Log.Warn("VERIFY", fmt.Sprintf("Retrieving %s failed: %v", ref, err))
		return pending("Payment received. Your booking will be confirmed shortly.")
	}
	if intent.BookingID != "" && intent.BookingID != b.ID {
		r.Log.Warn("VERIFY", fmt.Sprintf("%v: intent %s belongs to booking %s", models.ErrPaymentReferenceMismatch, ref, intent.BookingID))
		return pending("Payment reference does not match this booking.")
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		if b.PaymentReference == "" {
			if _, err := r.Store.AttachPaymentReference(ctx, b.ID, ref); err != nil {
				r.Log.Warn("VERIFY", fmt.Sprintf("Attaching %s to booking %s failed: %v", ref, b.ID, err))
				return pending("Payment received. Your booking will be confirmed shortly.")
			}
		}
		confirmed, _, err := r.confirm(ctx, ref)
		if err != nil {
			r.Log.Warn("VERIFY", fmt.Sprintf("Confirming %s failed: %v", ref, err))
			return pending("Payment received. Your booking will be confirmed shortly.")
		}
		if confirmed.Status == models.BookingConfirmed || confirmed.Status == models.BookingCompleted {
			return models.VerifyResponse{BookingID: b.ID, Status: models.VerifyConfirmed, Message: "Booking confirmed.", Booking: confirmed}
		}
		return pending("Payment received. Your booking will be confirmed shortly.")
	case stripe.PaymentIntentStatusProcessing:
		return models.VerifyResponse{BookingID: b.ID, Status: models.VerifyProcessing, Message: "Your payment is processing. We will confirm your booking once it completes."}
	default:
		return pending("Payment has not completed yet.")
	}
}
