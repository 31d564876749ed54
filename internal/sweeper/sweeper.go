package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"

	"golang.org/x/sync/errgroup"
)

type Store interface {
	ExpireStale(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	CompletePastDue(ctx context.Context, now time.Time) (int, error)
	UnrefundedCancellations(ctx context.Context, before time.Time) ([]models.Booking, error)
	RecordRefund(ctx context.Context, ref string) (*models.Booking, bool, error)
}

type Refunder interface {
	Refund(ctx context.Context, id string) error
}

// refundGrace keeps the sweeper away from cancellations whose refund is
// still in flight on the request path.
const refundGrace = time.Minute

// Sweeper expires stale unpaid bookings, completes past-due confirmed
// ones and retries refunds for cancellations that still hold the money.
// Each operation is a conditional update, so a failed tick is simply
// retried by the next one.
type Sweeper struct {
	Store          Store
	Refunder       Refunder
	Notifier       notify.Notifier
	PendingTimeout time.Duration
	Log            *logger.Logger
	Now            func() time.Time
}

func NewSweeper(store Store, refunder Refunder, notifier notify.Notifier, pendingTimeout time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		Store:          store,
		Refunder:       refunder,
		Notifier:       notifier,
		PendingTimeout: pendingTimeout,
		Log:            log,
		Now:            time.Now,
	}
}

// Sweep runs the operations concurrently. Counts are reported for
// whichever operations succeeded even when another failed.
func (s *Sweeper) Sweep(ctx context.Context) (*models.SweepResponse, error) {
	now := s.Now().UTC()
	result := &models.SweepResponse{}

	var g errgroup.Group
	g.Go(func() error {
		expired, err := s.Store.ExpireStale(ctx, now.Add(-s.PendingTimeout))
		if err != nil {
			s.Log.Error("SWEEP", fmt.Sprintf("Expire failed: %v", err))
			return fmt.Errorf("expire stale bookings: %w", err)
		}
		result.ExpiredCount = len(expired)
		for i := range expired {
			b := &expired[i]
			s.Log.LogBooking("EXPIRED", b.ID, "unpaid past the pending timeout")
			if err := s.Notifier.Enqueue(ctx, notify.Expired(b)...); err != nil {
				s.Log.Error("NOTIFY", fmt.Sprintf("Failed to enqueue expiry for booking %s: %v", b.ID, err))
			}
		}
		return nil
	})
	g.Go(func() error {
		completed, err := s.Store.CompletePastDue(ctx, now)
		if err != nil {
			s.Log.Error("SWEEP", fmt.Sprintf("Complete failed: %v", err))
			return fmt.Errorf("complete past-due bookings: %w", err)
		}
		result.CompletedCount = completed
		return nil
	})
	g.Go(func() error {
		refunded, err := s.retryRefunds(ctx, now.Add(-refundGrace))
		result.RefundedCount = refunded
		return err
	})
	err := g.Wait()

	s.Log.LogSweep("TICK", fmt.Sprintf("expired=%d completed=%d refunded=%d", result.ExpiredCount, result.CompletedCount, result.RefundedCount))
	return result, err
}

// retryRefunds refunds cancelled bookings whose refund failed when they
// were cancelled. A failure on one booking does not stop the rest.
func (s *Sweeper) retryRefunds(ctx context.Context, before time.Time) (int, error) {
	owed, err := s.Store.UnrefundedCancellations(ctx, before)
	if err != nil {
		s.Log.Error("SWEEP", fmt.Sprintf("Listing unrefunded cancellations failed: %v", err))
		return 0, fmt.Errorf("list unrefunded cancellations: %w", err)
	}

	refunded := 0
	for i := range owed {
		b := &owed[i]
		if err := s.Refunder.Refund(ctx, b.PaymentReference); err != nil {
			s.Log.Warn("SWEEP", fmt.Sprintf("Refund retry for booking %s failed: %v", b.ID, err))
			continue
		}
		_, changed, err := s.Store.RecordRefund(ctx, b.PaymentReference)
		if err != nil {
			s.Log.Error("SWEEP", fmt.Sprintf("Recording refund for booking %s failed: %v", b.ID, err))
			continue
		}
		if changed {
			refunded++
			s.Log.LogPayment("REFUNDED", b.PaymentReference, fmt.Sprintf("retried refund for cancelled booking %s", b.ID))
		}
	}
	return refunded, nil
}
