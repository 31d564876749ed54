package booking_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

// Mock implementations
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateIfAvailable(ctx context.Context, b *models.Booking, capacity int) error {
	return m.Called(ctx, b, capacity).Error(0)
}

func (m *MockStore) CountOverlapping(ctx context.Context, spaceID string, start, end time.Time) (int, error) {
	args := m.Called(ctx, spaceID, start, end)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) AttachPaymentReference(ctx context.Context, id, ref string) (*models.Booking, error) {
	args := m.Called(ctx, id, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) CancelPending(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) CancelConfirmed(ctx context.Context, id string, now time.Time) (*models.Booking, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) RecordRefund(ctx context.Context, ref string) (*models.Booking, bool, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Booking), args.Bool(1), args.Error(2)
}

type MockSpaces struct {
	mock.Mock
}

func (m *MockSpaces) GetSpace(ctx context.Context, spaceID string) (*models.Space, error) {
	args := m.Called(ctx, spaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Space), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreateIntent(ctx context.Context, bookingID string, amount models.Money, currency string) (*payment.Intent, error) {
	args := m.Called(ctx, bookingID, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockProcessor) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockProcessor) CancelIntent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProcessor) Refund(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Enqueue(ctx context.Context, msgs ...models.NotificationMessage) error {
	return m.Called(ctx, msgs).Error(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type mocks struct {
	store     *MockStore
	spaces    *MockSpaces
	processor *MockProcessor
	notifier  *MockNotifier
	limiter   *MockLimiter
}

func newService(opts booking.Options) (*booking.BookingService, *mocks) {
	m := &mocks{
		store:     new(MockStore),
		spaces:    new(MockSpaces),
		processor: new(MockProcessor),
		notifier:  new(MockNotifier),
		limiter:   new(MockLimiter),
	}
	svc := booking.NewBookingService(m.store, m.spaces, m.processor, m.notifier, m.limiter, opts, logger.New(&bytes.Buffer{}))
	return svc, m
}

// 2030-01-01 is a Tuesday.
var tuesday2pm = time.Date(2030, time.January, 1, 14, 0, 0, 0, time.UTC)

func testSpace() *models.Space {
	return &models.Space{ID: "space-1", OwnerID: "owner-1", BaseRatePerHour: 1000, Capacity: 1}
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:            "booking-1",
		DriverID:      "driver-1",
		SpaceID:       "space-1",
		OwnerID:       "owner-1",
		StartTime:     tuesday2pm,
		EndTime:       tuesday2pm.Add(2 * time.Hour),
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
		TotalPrice:    2000,
		Currency:      "usd",
	}
}

func TestCreateBooking_Success(t *testing.T) {
	svc, m := newService(booking.Options{Currency: "usd"})
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(true, nil)
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(testSpace(), nil)
	m.store.On("CreateIfAvailable", mock.Anything, mock.AnythingOfType("*models.Booking"), 1).Return(nil)

	resp, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID:   "space-1",
		StartTime: tuesday2pm,
		EndTime:   tuesday2pm.Add(2 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, resp.Booking.Status)
	assert.Equal(t, models.PaymentPending, resp.Booking.PaymentStatus)
	assert.Equal(t, models.Money(2000), resp.Booking.TotalPrice)
	assert.Equal(t, "owner-1", resp.Booking.OwnerID)
	assert.Equal(t, "usd", resp.Booking.Currency)
	assert.NotEmpty(t, resp.Booking.ID)
	assert.False(t, resp.Breakdown.MinimumApplied)
	m.store.AssertNotCalled(t, "CountOverlapping", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_PricesInSpaceTimezone(t *testing.T) {
	svc, m := newService(booking.Options{})
	space := testSpace()
	space.Timezone = "America/New_York"
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(true, nil)
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(space, nil)
	m.store.On("CreateIfAvailable", mock.Anything, mock.Anything, 1).Return(nil)

	// 12:00 UTC is 07:00 in New York, a peak hour there
	start := time.Date(2030, time.January, 1, 12, 0, 0, 0, time.UTC)
	resp, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID: "space-1", StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, 1.2, resp.Breakdown.TimeMultiplier)
	assert.Equal(t, models.Money(2400), resp.Booking.TotalPrice)
}

func TestCreateBooking_SlotUnavailable(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(true, nil)
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(testSpace(), nil)
	m.store.On("CreateIfAvailable", mock.Anything, mock.Anything, 1).Return(models.ErrSlotUnavailable)

	_, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour),
	})

	assert.True(t, errors.Is(err, models.ErrSlotUnavailable))
	assert.Equal(t, "this slot is already booked", err.Error())
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  models.BookingRequest
		want string
	}{
		{"missing space", models.BookingRequest{StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour)}, "spaceId"},
		{"end before start", models.BookingRequest{SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(-time.Hour)}, "endTime"},
		{"five minutes", models.BookingRequest{SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(5 * time.Minute)}, "minimum duration"},
		{"eight days", models.BookingRequest{SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(8 * 24 * time.Hour)}, "maximum duration"},
		{"in the past", models.BookingRequest{SpaceID: "space-1", StartTime: time.Now().Add(-2 * time.Hour), EndTime: time.Now().Add(-time.Hour)}, "future"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService(booking.Options{})
			_, err := svc.CreateBooking(context.Background(), "driver-1", tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
			m.store.AssertNotCalled(t, "CreateIfAvailable", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBooking_RateLimited(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(false, nil)

	_, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour),
	})

	assert.True(t, errors.Is(err, models.ErrRateLimited))
	m.spaces.AssertNotCalled(t, "GetSpace", mock.Anything, mock.Anything)
}

func TestCreateBooking_LimiterOutageDoesNotBlock(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(false, errors.New("redis down"))
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(testSpace(), nil)
	m.store.On("CreateIfAvailable", mock.Anything, mock.Anything, 1).Return(nil)

	_, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour),
	})

	assert.NoError(t, err)
}

func TestCreateBooking_OwnerCannotBookOwnSpace(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.limiter.On("Allow", mock.Anything, "owner-1").Return(true, nil)
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(testSpace(), nil)

	_, err := svc.CreateBooking(context.Background(), "owner-1", models.BookingRequest{
		SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour),
	})

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCreateBooking_UnknownSpace(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.limiter.On("Allow", mock.Anything, "driver-1").Return(true, nil)
	m.spaces.On("GetSpace", mock.Anything, "nope").Return(nil, models.ErrNotFound)

	_, err := svc.CreateBooking(context.Background(), "driver-1", models.BookingRequest{
		SpaceID: "nope", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(time.Hour),
	})

	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestQuote_DemandPricingUsesOccupancy(t *testing.T) {
	svc, m := newService(booking.Options{DemandPricing: true})
	space := testSpace()
	space.Capacity = 4
	m.spaces.On("GetSpace", mock.Anything, "space-1").Return(space, nil)
	m.store.On("CountOverlapping", mock.Anything, "space-1", mock.Anything, mock.Anything).Return(3, nil)

	breakdown, err := svc.Quote(context.Background(), models.QuoteRequest{
		SpaceID: "space-1", StartTime: tuesday2pm, EndTime: tuesday2pm.Add(2 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, 1.5, breakdown.DemandMultiplier)
	assert.Equal(t, models.Money(3000), breakdown.FinalPrice)
}

func TestGetBooking_OnlyParties(t *testing.T) {
	svc, m := newService(booking.Options{})
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(pendingBooking(), nil)

	_, err := svc.GetBooking(context.Background(), "driver-1", "booking-1")
	assert.NoError(t, err)
	_, err = svc.GetBooking(context.Background(), "owner-1", "booking-1")
	assert.NoError(t, err)
	_, err = svc.GetBooking(context.Background(), "stranger", "booking-1")
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func TestCancelBooking_PendingCancelsIntent(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	b.PaymentReference = "pi_1"
	cancelled := *b
	cancelled.Status = models.BookingCancelled

	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.store.On("CancelPending", mock.Anything, "booking-1").Return(&cancelled, nil)
	m.processor.On("CancelIntent", mock.Anything, "pi_1").Return(errors.New("stripe down"))
	m.notifier.On("Enqueue", mock.Anything, mock.MatchedBy(func(msgs []models.NotificationMessage) bool {
		return len(msgs) == 1 && msgs[0].Notification.UserID == "owner-1"
	})).Return(nil)

	got, err := svc.CancelBooking(context.Background(), "driver-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	m.processor.AssertExpectations(t)
	m.notifier.AssertExpectations(t)
}

func confirmedBooking() *models.Booking {
	b := pendingBooking()
	b.Status = models.BookingConfirmed
	b.PaymentStatus = models.PaymentCompleted
	b.PaymentReference = "pi_1"
	return b
}

func TestCancelBooking_ConfirmedClaimsThenRefunds(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := confirmedBooking()
	claimed := *b
	claimed.Status = models.BookingCancelled
	refunded := claimed
	refunded.PaymentStatus = models.PaymentRefunded

	var order []string
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.store.On("CancelConfirmed", mock.Anything, "booking-1", mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) { order = append(order, "claim") }).Return(&claimed, nil)
	m.processor.On("Refund", mock.Anything, "pi_1").
		Run(func(mock.Arguments) { order = append(order, "refund") }).Return(nil)
	m.store.On("RecordRefund", mock.Anything, "pi_1").Return(&refunded, true, nil)
	m.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	got, err := svc.CancelBooking(context.Background(), "owner-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"claim", "refund"}, order)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	m.processor.AssertExpectations(t)
}

func TestCancelBooking_RefundFailureKeepsCancellation(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := confirmedBooking()
	claimed := *b
	claimed.Status = models.BookingCancelled

	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.store.On("CancelConfirmed", mock.Anything, "booking-1", mock.Anything).Return(&claimed, nil)
	m.processor.On("Refund", mock.Anything, "pi_1").Return(models.ErrUpstreamProcessor)
	m.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	got, err := svc.CancelBooking(context.Background(), "driver-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	// still COMPLETED, so the sweeper retries the refund
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	m.store.AssertNotCalled(t, "RecordRefund", mock.Anything, mock.Anything)
}

func TestCancelBooking_ClaimRejectedIssuesNoRefund(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := confirmedBooking()

	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.store.On("CancelConfirmed", mock.Anything, "booking-1", mock.Anything).
		Return(nil, fmt.Errorf("%w: booking booking-1 is COMPLETED", models.ErrInvalidTransition))

	_, err := svc.CancelBooking(context.Background(), "driver-1", "booking-1")

	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	m.processor.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	m.notifier.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestCancelBooking_TerminalIsInvalidTransition(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	b.Status = models.BookingCompleted
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)

	_, err := svc.CancelBooking(context.Background(), "driver-1", "booking-1")

	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestUpdateStatus_OnlyCancellation(t *testing.T) {
	svc, _ := newService(booking.Options{})

	_, err := svc.UpdateStatus(context.Background(), "driver-1", "booking-1", models.StatusUpdateRequest{Status: models.BookingConfirmed})

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCreatePaymentIntent_CreatesAndAttaches(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.processor.On("CreateIntent", mock.Anything, "booking-1", models.Money(2000), "usd").
		Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil)
	m.store.On("AttachPaymentReference", mock.Anything, "booking-1", "pi_1").Return(b, nil)

	resp, err := svc.CreatePaymentIntent(context.Background(), "driver-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", resp.ClientSecret)
	assert.Equal(t, "pi_1", resp.PaymentReference)
	assert.Equal(t, models.Money(2000), resp.Amount)
}

func TestCreatePaymentIntent_ReusesUsableIntent(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	b.PaymentReference = "pi_1"
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)
	m.processor.On("RetrieveIntent", mock.Anything, "pi_1").
		Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil)

	resp, err := svc.CreatePaymentIntent(context.Background(), "driver-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, "pi_1", resp.PaymentReference)
	m.processor.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePaymentIntent_LosesRaceToConcurrentRequest(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	winner := pendingBooking()
	winner.PaymentReference = "pi_winner"

	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil).Once()
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(winner, nil).Once()
	m.processor.On("CreateIntent", mock.Anything, "booking-1", models.Money(2000), "usd").
		Return(&payment.Intent{ID: "pi_loser", ClientSecret: "loser_secret"}, nil)
	m.store.On("AttachPaymentReference", mock.Anything, "booking-1", "pi_loser").Return(nil, models.ErrPaymentReferenceMismatch)
	m.processor.On("CancelIntent", mock.Anything, "pi_loser").Return(nil)
	m.processor.On("RetrieveIntent", mock.Anything, "pi_winner").
		Return(&payment.Intent{ID: "pi_winner", ClientSecret: "winner_secret", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil)

	resp, err := svc.CreatePaymentIntent(context.Background(), "driver-1", "booking-1")

	require.NoError(t, err)
	assert.Equal(t, "pi_winner", resp.PaymentReference)
	m.processor.AssertCalled(t, "CancelIntent", mock.Anything, "pi_loser")
}

func TestCreatePaymentIntent_RejectsOtherUsersAndNonPending(t *testing.T) {
	svc, m := newService(booking.Options{})
	b := pendingBooking()
	m.store.On("GetBookingByID", mock.Anything, "booking-1").Return(b, nil)

	_, err := svc.CreatePaymentIntent(context.Background(), "owner-1", "booking-1")
	assert.True(t, errors.Is(err, models.ErrForbidden))

	b.Status = models.BookingExpired
	_, err = svc.CreatePaymentIntent(context.Background(), "driver-1", "booking-1")
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}
