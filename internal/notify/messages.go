package notify

import (
	"fmt"
	"time"

	"ms-booking/internal/models"
)

func bookingData(b *models.Booking) map[string]string {
	return map[string]string{
		"bookingId": b.ID,
		"spaceId":   b.SpaceID,
		"driverId":  b.DriverID,
		"startTime": b.StartTime.UTC().Format(time.RFC3339),
		"endTime":   b.EndTime.UTC().Format(time.RFC3339),
		"total":     b.TotalPrice.String(),
		"currency":  b.Currency,
	}
}

func window(b *models.Booking) string {
	return fmt.Sprintf("%s to %s", b.StartTime.UTC().Format("Mon Jan 2 15:04"), b.EndTime.UTC().Format("Mon Jan 2 15:04 MST"))
}

// Confirmed is sent to the driver and the owner once a payment confirms a booking.
func Confirmed(b *models.Booking) []models.NotificationMessage {
	data := bookingData(b)
	return []models.NotificationMessage{
		models.NewNotificationMessage(b, b.DriverID, models.NotifyBookingConfirmed, models.SeveritySuccess,
			"Booking confirmed",
			fmt.Sprintf("Your booking for %s is confirmed.", window(b)),
		).WithEmail(models.EmailBookingConfirmed, data),
		models.NewNotificationMessage(b, b.OwnerID, models.NotifyBookingConfirmed, models.SeverityInfo,
			"Your driveway was booked",
			fmt.Sprintf("A driver booked your space for %s.", window(b)),
		).WithEmail(models.EmailSpaceBooked, data),
	}
}

// PaymentFailed routes the driver back to the payment form.
func PaymentFailed(b *models.Booking) []models.NotificationMessage {
	return []models.NotificationMessage{
		models.NewNotificationMessage(b, b.DriverID, models.NotifyPaymentFailed, models.SeverityError,
			"Payment failed",
			"Your payment did not go through. Please try again before your reservation expires.",
		),
	}
}

// Refunded is sent to both parties when a refund cancels a booking.
func Refunded(b *models.Booking) []models.NotificationMessage {
	data := bookingData(b)
	return []models.NotificationMessage{
		models.NewNotificationMessage(b, b.DriverID, models.NotifyBookingRefunded, models.SeverityInfo,
			"Booking refunded",
			fmt.Sprintf("Your booking for %s was cancelled and %s %s refunded.", window(b), b.TotalPrice, b.Currency),
		).WithEmail(models.EmailBookingRefunded, data),
		models.NewNotificationMessage(b, b.OwnerID, models.NotifyBookingRefunded, models.SeverityWarning,
			"Booking refunded",
			fmt.Sprintf("The booking of your space for %s was cancelled and refunded.", window(b)),
		),
	}
}

// Expired is sent to both parties when the sweeper expires an unpaid booking.
func Expired(b *models.Booking) []models.NotificationMessage {
	data := bookingData(b)
	return []models.NotificationMessage{
		models.NewNotificationMessage(b, b.DriverID, models.NotifyBookingExpired, models.SeverityWarning,
			"Booking expired",
			fmt.Sprintf("Your reservation for %s expired because payment was not completed.", window(b)),
		).WithEmail(models.EmailBookingExpired, data),
		models.NewNotificationMessage(b, b.OwnerID, models.NotifyBookingExpired, models.SeverityInfo,
			"Reservation expired",
			fmt.Sprintf("An unpaid reservation of your space for %s expired.", window(b)),
		),
	}
}

// Cancelled tells the other party that cancelledBy cancelled the booking.
func Cancelled(b *models.Booking, cancelledBy string) []models.NotificationMessage {
	recipient := b.OwnerID
	message := fmt.Sprintf("The driver cancelled the booking of your space for %s.", window(b))
	if cancelledBy == b.OwnerID {
		recipient = b.DriverID
		message = fmt.Sprintf("The owner cancelled your booking for %s.", window(b))
	}
	return []models.NotificationMessage{
		models.NewNotificationMessage(b, recipient, models.NotifyBookingCancelled, models.SeverityWarning,
			"Booking cancelled", message,
		).WithEmail(models.EmailBookingCancelled, bookingData(b)),
	}
}
