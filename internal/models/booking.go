package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingExpired   BookingStatus = "EXPIRED"
)

// ActiveStatuses are the statuses that hold capacity on a space.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// IsTerminal reports whether no transition is defined out of s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted || s == BookingExpired
}

type BookingRequest struct {
	SpaceID   string    `json:"spaceId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type StatusUpdateRequest struct {
	Status BookingStatus `json:"status"`
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID               string        `bun:"id,pk" json:"id"`
	DriverID         string        `bun:"driver_id,notnull" json:"driverId"`
	SpaceID          string        `bun:"space_id,notnull" json:"spaceId"`
	OwnerID          string        `bun:"owner_id,notnull" json:"ownerId"`
	StartTime        time.Time     `bun:"start_time,notnull" json:"startTime"`
	EndTime          time.Time     `bun:"end_time,notnull" json:"endTime"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus    PaymentStatus `bun:"payment_status,notnull" json:"paymentStatus"`
	TotalPrice       Money         `bun:"total_price,notnull" json:"totalPrice"`
	Currency         string        `bun:"currency,notnull" json:"currency"`
	PaymentReference string        `bun:"payment_reference,nullzero,unique" json:"paymentReference,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
}

// IsParty reports whether userID is the booking's driver or the space owner.
func (b *Booking) IsParty(userID string) bool {
	return userID != "" && (userID == b.DriverID || userID == b.OwnerID)
}

type BookingResponse struct {
	Booking   *Booking   `json:"booking"`
	Breakdown *Breakdown `json:"breakdown,omitempty"`
}
