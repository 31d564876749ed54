package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const maxSerializationRetries = 3

// failedOrPending are the payment statuses of a PENDING booking that has not taken money.
var failedOrPending = []models.PaymentStatus{models.PaymentPending, models.PaymentFailed}

type DB struct {
	Bun *bun.DB
}

func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrPersistence, err)
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *DB) isolation() sql.IsolationLevel {
	if d.Bun.Dialect().Name() == dialect.SQLite {
		// sqlite serializes writers on its own
		return sql.LevelDefault
	}
	return sql.LevelSerializable
}

// ---------------- ADMISSION ----------------

// CreateIfAvailable inserts b only if fewer than capacity active bookings on
// the same space overlap its window. The count and the insert run in one
// serializable transaction; serialization failures are retried.
func (d *DB) CreateIfAvailable(ctx context.Context, b *models.Booking, capacity int) error {
	b.StartTime = utc(b.StartTime)
	b.EndTime = utc(b.EndTime)
	b.CreatedAt = utc(b.CreatedAt)
	b.UpdatedAt = b.CreatedAt

	opts := &sql.TxOptions{Isolation: d.isolation()}
	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = d.Bun.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			count, err := overlapping(tx.NewSelect(), b.SpaceID, b.StartTime, b.EndTime).Count(ctx)
			if err != nil {
				return err
			}
			if count >= capacity {
				return models.ErrSlotUnavailable
			}
			_, err = tx.NewInsert().Model(b).Exec(ctx)
			return err
		})
		if err == nil || errors.Is(err, models.ErrSlotUnavailable) {
			return err
		}
		if !isSerializationFailure(err) {
			return persistence(err)
		}
	}
	return persistence(fmt.Errorf("admission gave up after %d serialization failures: %w", maxSerializationRetries, err))
}

// CountOverlapping returns how many active bookings on spaceID overlap [start, end).
func (d *DB) CountOverlapping(ctx context.Context, spaceID string, start, end time.Time) (int, error) {
	count, err := overlapping(d.Bun.NewSelect(), spaceID, utc(start), utc(end)).Count(ctx)
	if err != nil {
		return 0, persistence(err)
	}
	return count, nil
}

// half-open intervals [s1,e1) and [s2,e2) overlap iff s1 < e2 AND s2 < e1
func overlapping(q *bun.SelectQuery, spaceID string, start, end time.Time) *bun.SelectQuery {
	return q.Model((*models.Booking)(nil)).
		Where("space_id = ?", spaceID).
		Where("status IN (?)", bun.In(models.ActiveStatuses)).
		Where("start_time < ?", end).
		Where("end_time > ?", start)
}

// ---------------- READS ----------------

// GetBookingByID → fetch one booking by its ID
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return &b, nil
}

// GetBookingByReference → fetch the booking carrying a processor payment reference
func (d *DB) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("payment_reference = ?", ref).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment reference %s: %w", ref, models.ErrNotFound)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return &b, nil
}

// ---------------- GUARDED TRANSITIONS ----------------

// guarded runs a conditional update and returns the rows it actually changed.
// Callers build the SET and WHERE clauses; updated_at is always bumped.
func (d *DB) guarded(ctx context.Context, build func(q *bun.UpdateQuery) *bun.UpdateQuery) ([]models.Booking, error) {
	var rows []models.Booking
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("updated_at = ?", utc(time.Now()))
	_, err := build(q).Returning("*").Exec(ctx, &rows)
	if err != nil {
		return nil, persistence(err)
	}
	return rows, nil
}

// byReference applies a guarded transition keyed by payment reference. When
// the guard does not hold it returns the current row with changed=false.
func (d *DB) byReference(ctx context.Context, ref string, build func(q *bun.UpdateQuery) *bun.UpdateQuery) (*models.Booking, bool, error) {
	rows, err := d.guarded(ctx, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return build(q.Where("payment_reference = ?", ref))
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) > 0 {
		return &rows[0], true, nil
	}
	current, err := d.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// ConfirmPayment moves PENDING → CONFIRMED with paymentStatus=COMPLETED.
// Replays find the guard false and report changed=false.
func (d *DB) ConfirmPayment(ctx context.Context, ref string) (*models.Booking, bool, error) {
	return d.byReference(ctx, ref, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", models.BookingConfirmed).
			Set("payment_status = ?", models.PaymentCompleted).
			Where("status = ?", models.BookingPending)
	})
}

// MarkPaymentFailed records a failed attempt. The booking stays PENDING so the
// driver can retry until the sweeper expires it.
func (d *DB) MarkPaymentFailed(ctx context.Context, ref string) (*models.Booking, bool, error) {
	return d.byReference(ctx, ref, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("payment_status = ?", models.PaymentFailed).
			Where("status = ?", models.BookingPending).
			Where("payment_status = ?", models.PaymentPending)
	})
}

// RefundPayment moves PENDING or CONFIRMED → CANCELLED with paymentStatus=REFUNDED.
// COMPLETED bookings are never touched.
func (d *DB) RefundPayment(ctx context.Context, ref string) (*models.Booking, bool, error) {
	return d.byReference(ctx, ref, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", models.BookingCancelled).
			Set("payment_status = ?", models.PaymentRefunded).
			Where("status IN (?)", bun.In(models.ActiveStatuses))
	})
}

// RecordRefund marks the payment of a cancelled or expired booking as
// refunded once the processor refund went through. The status is left alone.
func (d *DB) RecordRefund(ctx context.Context, ref string) (*models.Booking, bool, error) {
	return d.byReference(ctx, ref, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("payment_status = ?", models.PaymentRefunded).
			Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingCancelled, models.BookingExpired})).
			Where("payment_status <> ?", models.PaymentRefunded)
	})
}

// AttachPaymentReference records ref on a PENDING booking. An existing
// different reference is never overwritten.
func (d *DB) AttachPaymentReference(ctx context.Context, id, ref string) (*models.Booking, error) {
	rows, err := d.guarded(ctx, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("payment_reference = ?", ref).
			Where("id = ?", id).
			Where("status = ?", models.BookingPending).
			WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.Where("payment_reference IS NULL").WhereOr("payment_reference = ?", ref)
			})
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s is recorded on another booking", models.ErrPaymentReferenceMismatch, ref)
		}
		return nil, err
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}

	current, err := d.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.BookingPending {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, id, current.Status)
	}
	return nil, fmt.Errorf("%w: booking %s already has %s", models.ErrPaymentReferenceMismatch, id, current.PaymentReference)
}

// CancelPending moves an unpaid PENDING booking to CANCELLED.
func (d *DB) CancelPending(ctx context.Context, id string) (*models.Booking, error) {
	return d.byID(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", models.BookingCancelled).
			Where("status = ?", models.BookingPending)
	})
}

// CancelConfirmed claims a CONFIRMED booking whose window has not ended yet
// and moves it to CANCELLED. The payment stays COMPLETED until the refund is
// recorded with RecordRefund, so a booking the sweeper already completed is
// never refunded.
func (d *DB) CancelConfirmed(ctx context.Context, id string, now time.Time) (*models.Booking, error) {
	rows, err := d.guarded(ctx, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", models.BookingCancelled).
			Where("id = ?", id).
			Where("status = ?", models.BookingConfirmed).
			Where("end_time > ?", utc(now))
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}
	current, err := d.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingConfirmed {
		return nil, fmt.Errorf("%w: booking %s ended at %s", models.ErrInvalidTransition, id, current.EndTime.UTC().Format(time.RFC3339))
	}
	return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, id, current.Status)
}

// UnrefundedCancellations lists cancelled bookings that still hold a
// completed payment and were last touched before the given time.
func (d *DB) UnrefundedCancellations(ctx context.Context, before time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("status = ?", models.BookingCancelled).
		Where("payment_status = ?", models.PaymentCompleted).
		Where("payment_reference IS NOT NULL").
		Where("updated_at < ?", utc(before)).
		Order("updated_at ASC").
		Limit(100).
		Scan(ctx)
	if err != nil {
		return nil, persistence(err)
	}
	return rows, nil
}

func (d *DB) byID(ctx context.Context, id string, build func(q *bun.UpdateQuery) *bun.UpdateQuery) (*models.Booking, error) {
	rows, err := d.guarded(ctx, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return build(q.Where("id = ?", id))
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}
	current, err := d.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, id, current.Status)
}

// ---------------- SWEEPS ----------------

// ExpireStale moves every unpaid PENDING booking created before cutoff to
// EXPIRED in one statement and returns the rows it changed.
func (d *DB) ExpireStale(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	return d.guarded(ctx, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", models.BookingExpired).
			Set("payment_status = ?", models.PaymentFailed).
			Where("status = ?", models.BookingPending).
			Where("payment_status IN (?)", bun.In(failedOrPending)).
			Where("created_at < ?", utc(cutoff))
	})
}

// CompletePastDue moves every CONFIRMED booking whose window ended before now
// to COMPLETED in one statement.
func (d *DB) CompletePastDue(ctx context.Context, now time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCompleted).
		Set("updated_at = ?", utc(now)).
		Where("status = ?", models.BookingConfirmed).
		Where("end_time < ?", utc(now)).
		Exec(ctx)
	if err != nil {
		return 0, persistence(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence(err)
	}
	return int(n), nil
}
