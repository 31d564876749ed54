package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type NotificationKind string

const (
	NotifyBookingConfirmed NotificationKind = "BOOKING_CONFIRMED"
	NotifyPaymentFailed    NotificationKind = "PAYMENT_FAILED"
	NotifyBookingRefunded  NotificationKind = "BOOKING_REFUNDED"
	NotifyBookingExpired   NotificationKind = "BOOKING_EXPIRED"
	NotifyBookingCancelled NotificationKind = "BOOKING_CANCELLED"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        string           `bun:"id,pk" json:"id"`
	UserID    string           `bun:"user_id,notnull" json:"userId"`
	BookingID string           `bun:"booking_id,notnull" json:"bookingId"`
	Kind      NotificationKind `bun:"kind,notnull" json:"kind"`
	Title     string           `bun:"title,notnull" json:"title"`
	Message   string           `bun:"message,notnull" json:"message"`
	Severity  Severity         `bun:"severity,notnull" json:"severity"`
	DedupeKey string           `bun:"dedupe_key,notnull,unique" json:"-"`
	CreatedAt time.Time        `bun:"created_at,notnull" json:"createdAt"`
}

type EmailTemplate string

const (
	EmailBookingConfirmed EmailTemplate = "booking_confirmed"
	EmailSpaceBooked      EmailTemplate = "space_booked"
	EmailBookingRefunded  EmailTemplate = "booking_refunded"
	EmailBookingExpired   EmailTemplate = "booking_expired"
	EmailBookingCancelled EmailTemplate = "booking_cancelled"
)

type EmailRequest struct {
	Template EmailTemplate    `json:"template"`
	Data     map[string]string `json:"data"`
}

// NotificationMessage is the unit handed off to the notification pipeline.
type NotificationMessage struct {
	Notification Notification  `json:"notification"`
	Email        *EmailRequest `json:"email,omitempty"`
}

// NewNotificationMessage builds a message whose dedupe key is stable for one
// (booking, kind, recipient) so redelivery collapses onto one row.
func NewNotificationMessage(b *Booking, userID string, kind NotificationKind, severity Severity, title, message string) NotificationMessage {
	return NotificationMessage{
		Notification: Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			BookingID: b.ID,
			Kind:      kind,
			Title:     title,
			Message:   message,
			Severity:  severity,
			DedupeKey: fmt.Sprintf("%s:%s:%s", b.ID, kind, userID),
			CreatedAt: time.Now().UTC(),
		},
	}
}

// WithEmail attaches an email request to the message.
func (m NotificationMessage) WithEmail(template EmailTemplate, data map[string]string) NotificationMessage {
	m.Email = &EmailRequest{Template: template, Data: data}
	return m
}
