package booking_api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"

	"github.com/go-chi/chi/v5"
)

// CreatePaymentIntent returns the client secret the driver pays against.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: bookingId=%s", bookingID))

	resp, err := h.Bookings.CreatePaymentIntent(r.Context(), auth.UserID(r.Context()), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: failed to create payment intent: %v", err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: intent %s for booking %s", resp.PaymentReference, bookingID))
}

// VerifyPayment always answers 200; the body tells the client whether the
// booking is confirmed yet.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := decode(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	if req.BookingID == "" {
		respondError(w, http.StatusBadRequest, "bookingId is required")
		return
	}

	resp := h.Payments.Verify(r.Context(), auth.UserID(r.Context()), req)
	h.Logger.Info("API", fmt.Sprintf("VerifyPayment: booking %s is %s", req.BookingID, resp.Status))
	respondJSON(w, http.StatusOK, resp)
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Options.WebhookTimeout)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.Options.WebhookMaxBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Logger.LogSecurity("WEBHOOK_TOO_LARGE", fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit))
			respondError(w, http.StatusRequestEntityTooLarge, "Webhook payload too large")
			return
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to read webhook payload: %v", err))
		respondError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.Payments.HandleWebhook(ctx, payload, r.Header.Get("Stripe-Signature")); err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			respondError(w, webhookErr.StatusCode, webhookErr.PublicError)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.WebhookAck{Received: true})
}

// Sweep runs one sweeper tick for the external timer.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Sweep: %v", err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
