package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Data        []byte
}

type Email struct {
	To          string
	ToName      string
	Subject     string
	PlainText   string
	HTML        string
	Attachments []Attachment
}

// EmailSender is any email backend.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromEmail),
	}
}

func (s *SendGridSender) Send(ctx context.Context, email Email) error {
	message := mail.NewSingleEmail(s.from, email.Subject, mail.NewEmail(email.ToName, email.To), email.PlainText, email.HTML)
	for _, a := range email.Attachments {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Data))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		if a.ContentID != "" {
			att.SetDisposition("inline")
			att.SetContentID(a.ContentID)
		}
		message.AddAttachment(att)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogSender writes emails to the log. Used when no SendGrid key is configured.
type LogSender struct {
	Log *logger.Logger
}

func (s *LogSender) Send(_ context.Context, email Email) error {
	s.Log.Info("EMAIL", fmt.Sprintf("To=%s Subject=%q Attachments=%d", email.To, email.Subject, len(email.Attachments)))
	return nil
}

var subjects = map[models.EmailTemplate]string{
	models.EmailBookingConfirmed: "Your parking is confirmed",
	models.EmailSpaceBooked:      "Your driveway has a new booking",
	models.EmailBookingRefunded:  "Your booking was refunded",
	models.EmailBookingExpired:   "Your reservation expired",
	models.EmailBookingCancelled: "A booking was cancelled",
}

// renderEmail builds the subject and bodies for a template. The notification
// message doubles as the email's lead paragraph.
// A non-empty passCID embeds the inline parking pass image.
func renderEmail(req *models.EmailRequest, n models.Notification, to *models.UserProfile, passCID string) Email {
	subject, ok := subjects[req.Template]
	if !ok {
		subject = n.Title
	}
	name := to.FullName
	if name == "" {
		name = "there"
	}

	plain := fmt.Sprintf("Hi %s,\n\n%s\n\nBooking: %s\nFrom: %s\nTo: %s\nTotal: %s %s\n",
		name, n.Message, req.Data["bookingId"], req.Data["startTime"], req.Data["endTime"], req.Data["total"], req.Data["currency"])

	body := fmt.Sprintf(`<html>
	<body>
		<h2>%s</h2>
		<p>Hi %s,</p>
		<p>%s</p>
		<table>
			<tr><td>Booking</td><td>%s</td></tr>
			<tr><td>From</td><td>%s</td></tr>
			<tr><td>To</td><td>%s</td></tr>
			<tr><td>Total</td><td>%s %s</td></tr>
		</table>
		%s
	</body>
</html>`,
		html.EscapeString(subject), html.EscapeString(name), html.EscapeString(n.Message),
		html.EscapeString(req.Data["bookingId"]), html.EscapeString(req.Data["startTime"]), html.EscapeString(req.Data["endTime"]),
		html.EscapeString(req.Data["total"]), html.EscapeString(req.Data["currency"]), passImage(passCID))

	return Email{
		To:        to.Email,
		ToName:    to.FullName,
		Subject:   subject,
		PlainText: plain,
		HTML:      body,
	}
}

func passImage(cid string) string {
	if cid == "" {
		return ""
	}
	return fmt.Sprintf(`<p>Show this pass on arrival:</p><img src="cid:%s" alt="Parking pass" width="256" height="256"/>`, html.EscapeString(cid))
}
