package models

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// VerifyStatus is what the client verify call reports back to the checkout screen.
type VerifyStatus string

const (
	VerifyConfirmed  VerifyStatus = "CONFIRMED"
	VerifyProcessing VerifyStatus = "PROCESSING"
	VerifyPending    VerifyStatus = "PENDING"
)

type VerifyRequest struct {
	BookingID        string `json:"bookingId"`
	PaymentReference string `json:"paymentReference"`
}

type VerifyResponse struct {
	BookingID string       `json:"bookingId"`
	Status    VerifyStatus `json:"status"`
	Message   string       `json:"message"`
	Booking   *Booking     `json:"booking,omitempty"`
}

type PaymentIntentResponse struct {
	ClientSecret     string `json:"clientSecret"`
	PaymentReference string `json:"paymentReference"`
	Amount           Money  `json:"amount"`
	Currency         string `json:"currency"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

type SweepResponse struct {
	ExpiredCount   int `json:"expiredCount"`
	CompletedCount int `json:"completedCount"`
	RefundedCount  int `json:"refundedCount"`
}
