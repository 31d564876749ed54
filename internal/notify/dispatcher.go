package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const passContentID = "parking-pass"

type NotificationStore interface {
	SaveNotification(ctx context.Context, n *models.Notification) (bool, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Dispatcher is the consuming end of the hand-off.
type Dispatcher struct {
	Store  NotificationStore
	Users  UserDirectory
	Sender EmailSender
	Pass   *PassGenerator
	Log    *logger.Logger
}

// Handle persists the notification and sends its email only if the row was
// new. A store error is returned so the message is redelivered; email
// failures are logged, because a redelivered message would find the row and
// skip the email anyway.
func (d *Dispatcher) Handle(ctx context.Context, msg models.NotificationMessage) error {
	n := msg.Notification
	inserted, err := d.Store.SaveNotification(ctx, &n)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", n.DedupeKey, err)
	}
	if !inserted {
		d.Log.Info("NOTIFY", fmt.Sprintf("Duplicate notification %s ignored", n.DedupeKey))
		return nil
	}
	d.Log.Info("NOTIFY", fmt.Sprintf("Stored %s notification for user %s on booking %s", n.Kind, n.UserID, n.BookingID))

	if msg.Email == nil || d.Sender == nil {
		return nil
	}

	profile, err := d.Users.GetUser(ctx, n.UserID)
	if err != nil {
		d.Log.Error("EMAIL", fmt.Sprintf("Failed to look up user %s for %s: %v", n.UserID, n.DedupeKey, err))
		return nil
	}
	if profile.Email == "" {
		d.Log.Warn("EMAIL", fmt.Sprintf("User %s has no email address, skipping %s", n.UserID, n.DedupeKey))
		return nil
	}

	var attachments []Attachment
	cid := ""
	if msg.Email.Template == models.EmailBookingConfirmed && d.Pass != nil {
		if png, err := d.renderPass(msg.Email.Data); err != nil {
			d.Log.Error("EMAIL", fmt.Sprintf("Sending %s without a parking pass: %v", n.BookingID, err))
		} else {
			cid = passContentID
			attachments = append(attachments, Attachment{
				Filename:    fmt.Sprintf("parking-pass-%s.png", n.BookingID),
				ContentType: "image/png",
				ContentID:   cid,
				Data:        png,
			})
		}
	}

	email := renderEmail(msg.Email, n, profile, cid)
	email.Attachments = attachments
	if err := d.Sender.Send(ctx, email); err != nil {
		d.Log.Error("EMAIL", fmt.Sprintf("Failed to send %s to %s: %v", msg.Email.Template, n.UserID, err))
		return nil
	}
	d.Log.Info("EMAIL", fmt.Sprintf("Sent %s to user %s for booking %s", msg.Email.Template, n.UserID, n.BookingID))
	return nil
}

// HandleRaw decodes a message from the Kafka topic. Undecodable messages are
// logged and skipped.
func (d *Dispatcher) HandleRaw(ctx context.Context, _, value []byte) error {
	var msg models.NotificationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		d.Log.Error("NOTIFY", fmt.Sprintf("Failed to unmarshal notification message: %v", err))
		return nil
	}
	return d.Handle(ctx, msg)
}

func (d *Dispatcher) renderPass(data map[string]string) ([]byte, error) {
	p, err := passFromData(data)
	if err != nil {
		return nil, err
	}
	png, err := d.Pass.QR(p)
	if err != nil {
		return nil, fmt.Errorf("render parking pass: %w", err)
	}
	return png, nil
}

func passFromData(data map[string]string) (ParkingPass, error) {
	p := ParkingPass{
		BookingID: data["bookingId"],
		SpaceID:   data["spaceId"],
		DriverID:  data["driverId"],
	}
	var err error
	if p.ValidFrom, err = time.Parse(time.RFC3339, data["startTime"]); err != nil {
		return ParkingPass{}, fmt.Errorf("parking pass start time: %w", err)
	}
	if p.ValidUntil, err = time.Parse(time.RFC3339, data["endTime"]); err != nil {
		return ParkingPass{}, fmt.Errorf("parking pass end time: %w", err)
	}
	return p, nil
}
