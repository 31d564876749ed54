package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type BookingService interface {
	CreateBooking(ctx context.Context, driverID string, req models.BookingRequest) (*models.BookingResponse, error)
	GetBooking(ctx context.Context, userID, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, userID, id string, req models.StatusUpdateRequest) (*models.Booking, error)
	CreatePaymentIntent(ctx context.Context, driverID, id string) (*models.PaymentIntentResponse, error)
	Quote(ctx context.Context, req models.QuoteRequest) (*models.Breakdown, error)
}

type Reconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Verify(ctx context.Context, driverID string, req models.VerifyRequest) models.VerifyResponse
}

type Sweeper interface {
	Sweep(ctx context.Context) (*models.SweepResponse, error)
}

type Notifications interface {
	NotificationsForUser(ctx context.Context, userID string) ([]models.Notification, error)
}

type Handler struct {
	Bookings      BookingService
	Payments      Reconciler
	Sweeper       Sweeper
	Notifications Notifications
	Logger        *logger.Logger
	Options       Options
}

func NewHandler(bookings BookingService, payments Reconciler, sweeper Sweeper, notifications Notifications, log *logger.Logger, opts Options) *Handler {
	return &Handler{
		Bookings:      bookings,
		Payments:      payments,
		Sweeper:       sweeper,
		Notifications: notifications,
		Logger:        log,
		Options:       opts.withDefaults(),
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err)
	}
	return nil
}

// ---------------- BOOKINGS ----------------

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: userId=%s", userID))

	var req models.BookingRequest
	if err := decode(r, &req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		respondDomainError(w, err)
		return
	}

	resp, err := h.Bookings.CreateBooking(r.Context(), userID, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateBooking: space %s rejected: %v", req.SpaceID, err))
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s created", resp.Booking.ID))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("GetBooking: bookingId=%s", bookingID))

	b, err := h.Bookings.GetBooking(r.Context(), auth.UserID(r.Context()), bookingID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("GetBooking: %v", err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("UpdateBooking: bookingId=%s userId=%s", bookingID, userID))

	var req models.StatusUpdateRequest
	if err := decode(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}

	b, err := h.Bookings.UpdateStatus(r.Context(), userID, bookingID, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateBooking: %v", err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
	h.Logger.Info("API", fmt.Sprintf("UpdateBooking: booking %s is now %s", b.ID, b.Status))
}

// ---------------- NOTIFICATIONS ----------------

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	list, err := h.Notifications.NotificationsForUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListNotifications: userId=%s: %v", userID, err))
		respondDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	respondJSON(w, http.StatusOK, list)
}

// ---------------- PRICING ----------------

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if err := decode(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	breakdown, err := h.Bookings.Quote(r.Context(), req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Quote: %v", err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

func (h *Handler) MinimumRate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"minimumRatePerHour": pricing.MinListingRate(),
		"minimumPrice":       pricing.MinPrice,
		"minimumDuration":    pricing.MinDuration.String(),
		"maximumDuration":    pricing.MaxDuration.String(),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}
