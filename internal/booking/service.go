package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"
	"ms-booking/internal/payment"
	"ms-booking/internal/pricing"

	"github.com/google/uuid"
)

type Store interface {
	CreateIfAvailable(ctx context.Context, b *models.Booking, capacity int) error
	CountOverlapping(ctx context.Context, spaceID string, start, end time.Time) (int, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	AttachPaymentReference(ctx context.Context, id, ref string) (*models.Booking, error)
	CancelPending(ctx context.Context, id string) (*models.Booking, error)
	CancelConfirmed(ctx context.Context, id string, now time.Time) (*models.Booking, error)
	RecordRefund(ctx context.Context, ref string) (*models.Booking, bool, error)
}

type SpaceDirectory interface {
	GetSpace(ctx context.Context, spaceID string) (*models.Space, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Currency      string
	DemandPricing bool
}

type BookingService struct {
	Store     Store
	Spaces    SpaceDirectory
	Processor payment.Processor
	Notifier  notify.Notifier
	Limiter   RateLimiter
	Options   Options
	Log       *logger.Logger
	now       func() time.Time
}

func NewBookingService(store Store, spaces SpaceDirectory, processor payment.Processor, notifier notify.Notifier, limiter RateLimiter, opts Options, log *logger.Logger) *BookingService {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &BookingService{
		Store:     store,
		Spaces:    spaces,
		Processor: processor,
		Notifier:  notifier,
		Limiter:   limiter,
		Options:   opts,
		Log:       log,
		now:       time.Now,
	}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

func validateWindow(spaceID string, start, end time.Time) error {
	if strings.TrimSpace(spaceID) == "" {
		return validationError("spaceId is required")
	}
	if start.IsZero() || end.IsZero() {
		return validationError("startTime and endTime are required")
	}
	if !end.After(start) {
		return validationError("endTime must be after startTime")
	}
	return pricing.ValidateDuration(start, end)
}

// ---------------- PRICING ----------------

// Quote prices a window on a space without admitting anything.
func (s *BookingService) Quote(ctx context.Context, req models.QuoteRequest) (*models.Breakdown, error) {
	if err := validateWindow(req.SpaceID, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	space, err := s.Spaces.GetSpace(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.price(ctx, space, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	return &breakdown, nil
}

func (s *BookingService) price(ctx context.Context, space *models.Space, start, end time.Time) (models.Breakdown, error) {
	loc := time.UTC
	if space.Timezone != "" {
		if l, err := time.LoadLocation(space.Timezone); err == nil {
			loc = l
		} else {
			s.Log.Warn("PRICING", fmt.Sprintf("Unknown timezone %q on space %s, using UTC", space.Timezone, space.ID))
		}
	}

	demand := 1.0
	if s.Options.DemandPricing && space.Capacity > 0 {
		count, err := s.Store.CountOverlapping(ctx, space.ID, start, end)
		if err != nil {
			return models.Breakdown{}, err
		}
		demand = pricing.DemandMultiplier(float64(count) / float64(space.Capacity))
	}
	return pricing.Price(space.BaseRatePerHour, start, end, demand, loc), nil
}

// ---------------- BOOKINGS ----------------

// CreateBooking validates the window, prices it and admits it against the
// space's capacity. The booking starts PENDING/PENDING.
func (s *BookingService) CreateBooking(ctx context.Context, driverID string, req models.BookingRequest) (*models.BookingResponse, error) {
	if driverID == "" {
		return nil, models.ErrUnauthorized
	}
	if err := validateWindow(req.SpaceID, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if !req.StartTime.After(s.now()) {
		return nil, validationError("startTime must be in the future")
	}

	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, driverID)
		if err != nil {
			// the limiter is best effort; admission stays correct without it
			s.Log.Warn("RATELIMIT", fmt.Sprintf("Rate limiter unavailable: %v", err))
		} else if !ok {
			s.Log.LogSecurity("RATE_LIMITED", fmt.Sprintf("driver %s exceeded booking rate", driverID))
			return nil, models.ErrRateLimited
		}
	}

	space, err := s.Spaces.GetSpace(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if space.OwnerID == driverID {
		return nil, validationError("you cannot book your own space")
	}

	breakdown, err := s.price(ctx, space, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b := &models.Booking{
		ID:            uuid.NewString(),
		DriverID:      driverID,
		SpaceID:       space.ID,
		OwnerID:       space.OwnerID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
		TotalPrice:    breakdown.FinalPrice,
		Currency:      s.Options.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateIfAvailable(ctx, b, space.Capacity); err != nil {
		if errors.Is(err, models.ErrSlotUnavailable) {
			s.Log.LogBooking("REJECTED", b.ID, fmt.Sprintf("space %s full for %s-%s", space.ID, req.StartTime, req.EndTime))
		}
		return nil, err
	}

	s.Log.LogBooking("CREATED", b.ID, fmt.Sprintf("driver %s, space %s, %s %s", driverID, space.ID, b.TotalPrice, b.Currency))
	return &models.BookingResponse{Booking: b, Breakdown: &breakdown}, nil
}

// GetBooking returns a booking to its driver or the space owner.
func (s *BookingService) GetBooking(ctx context.Context, userID, id string) (*models.Booking, error) {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(userID) {
		return nil, models.ErrForbidden
	}
	return b, nil
}

// UpdateStatus applies a caller-requested status change. Only cancellation
// is accepted from callers; everything else is driven by payments and the sweeper.
func (s *BookingService) UpdateStatus(ctx context.Context, userID, id string, req models.StatusUpdateRequest) (*models.Booking, error) {
	if req.Status != models.BookingCancelled {
		return nil, validationError("status can only be changed to %s", models.BookingCancelled)
	}
	return s.CancelBooking(ctx, userID, id)
}

// CancelBooking cancels on behalf of the driver or the owner. A paid booking
// is claimed as CANCELLED first and refunded afterwards; a refund that fails
// here is retried by the sweeper.
func (s *BookingService) CancelBooking(ctx context.Context, userID, id string) (*models.Booking, error) {
	b, err := s.GetBooking(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var cancelled *models.Booking
	switch b.Status {
	case models.BookingPending:
		cancelled, err = s.Store.CancelPending(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.PaymentReference != "" {
			if err := s.Processor.CancelIntent(ctx, b.PaymentReference); err != nil {
				// a payment that still lands is refunded by the reconciler
				s.Log.Warn("PAYMENT", fmt.Sprintf("Cancelling intent %s for booking %s failed: %v", b.PaymentReference, id, err))
			}
		}
	case models.BookingConfirmed:
		cancelled, err = s.Store.CancelConfirmed(ctx, id, s.now())
		if err != nil {
			return nil, err
		}
		cancelled = s.refund(ctx, cancelled)
	default:
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, id, b.Status)
	}

	s.Log.LogBooking("CANCELLED", id, fmt.Sprintf("cancelled by %s", userID))
	if err := s.Notifier.Enqueue(ctx, notify.Cancelled(cancelled, userID)...); err != nil {
		s.Log.Error("NOTIFY", fmt.Sprintf("Failed to enqueue cancellation for booking %s: %v", id, err))
	}
	return cancelled, nil
}

// refund returns the payment of a booking this service just cancelled. The
// booking is returned as the store last saw it.
func (s *BookingService) refund(ctx context.Context, b *models.Booking) *models.Booking {
	if b.PaymentReference == "" || b.PaymentStatus != models.PaymentCompleted {
		return b
	}
	if err := s.Processor.Refund(ctx, b.PaymentReference); err != nil {
		s.Log.Error("PAYMENT", fmt.Sprintf("Refund of %s for cancelled booking %s failed, left for the sweeper: %v", b.PaymentReference, b.ID, err))
		return b
	}
	updated, _, err := s.Store.RecordRefund(ctx, b.PaymentReference)
	if err != nil {
		s.Log.Error("PAYMENT", fmt.Sprintf("Refund of %s issued but not recorded for booking %s: %v", b.PaymentReference, b.ID, err))
		return b
	}
	s.Log.LogPayment("REFUNDED", b.PaymentReference, fmt.Sprintf("booking %s cancelled", b.ID))
	return updated
}

// ---------------- PAYMENT INTENTS ----------------

// CreatePaymentIntent returns the intent the driver pays against, creating
// and recording one if the booking has none that is still usable.
func (s *BookingService) CreatePaymentIntent(ctx context.Context, driverID, id string) (*models.PaymentIntentResponse, error) {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.DriverID != driverID {
		return nil, models.ErrForbidden
	}
	if b.Status != models.BookingPending {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, id, b.Status)
	}

	if b.PaymentReference != "" {
		return s.existingIntent(ctx, b)
	}

	intent, err := s.Processor.CreateIntent(ctx, b.ID, b.TotalPrice, b.Currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.AttachPaymentReference(ctx, b.ID, intent.ID); err != nil {
		// a concurrent request attached a different intent first
		if cancelErr := s.Processor.CancelIntent(ctx, intent.ID); cancelErr != nil {
			s.Log.Warn("PAYMENT", fmt.Sprintf("Cancelling orphaned intent %s failed: %v", intent.ID, cancelErr))
		}
		if errors.Is(err, models.ErrPaymentReferenceMismatch) {
			if current, getErr := s.Store.GetBookingByID(ctx, id); getErr == nil && current.PaymentReference != "" {
				return s.existingIntent(ctx, current)
			}
		}
		return nil, err
	}
	s.Log.LogBooking("INTENT_ATTACHED", id, fmt.Sprintf("payment %s", intent.ID))
	return intentResponse(intent, b), nil
}

func (s *BookingService) existingIntent(ctx context.Context, b *models.Booking) (*models.PaymentIntentResponse, error) {
	intent, err := s.Processor.RetrieveIntent(ctx, b.PaymentReference)
	if err != nil {
		return nil, err
	}
	if !intent.Usable() {
		return nil, fmt.Errorf("%w: payment %s is %s", models.ErrInvalidTransition, intent.ID, intent.Status)
	}
	s.Log.LogPayment("INTENT_REUSED", intent.ID, fmt.Sprintf("booking %s", b.ID))
	return intentResponse(intent, b), nil
}

func intentResponse(intent *payment.Intent, b *models.Booking) *models.PaymentIntentResponse {
	return &models.PaymentIntentResponse{
		ClientSecret:     intent.ClientSecret,
		PaymentReference: intent.ID,
		Amount:           b.TotalPrice,
		Currency:         b.Currency,
	}
}
