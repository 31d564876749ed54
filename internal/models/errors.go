package models

import "errors"

var (
	// ErrValidation is returned for bad input shape or values.
	ErrValidation = errors.New("validation error")

	// ErrSlotUnavailable is returned when admission would exceed the space's capacity.
	ErrSlotUnavailable = errors.New("this slot is already booked")

	// ErrUnauthorized is returned when the caller's credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller may not act on the booking.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a booking or space does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSignature is returned when a webhook signature does not verify.
	ErrSignature = errors.New("invalid webhook signature")

	// ErrUpstreamProcessor is returned when a payment processor call fails.
	ErrUpstreamProcessor = errors.New("payment processor error")

	// ErrPersistence is returned when the store is unavailable.
	ErrPersistence = errors.New("store unavailable")

	// ErrInvalidTransition is returned when a guarded transition's guard does not hold.
	ErrInvalidTransition = errors.New("booking is not in a valid state for this change")

	// ErrPaymentReferenceMismatch is returned when a different payment reference is already recorded.
	ErrPaymentReferenceMismatch = errors.New("payment reference does not match booking")

	// ErrRateLimited is returned when a driver exceeds the booking creation rate.
	ErrRateLimited = errors.New("too many booking requests")
)
