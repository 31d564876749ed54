package booking_api

import (
	"errors"
	"net/http"

	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// mapErrorToHTTPStatus maps domain errors to HTTP status codes
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrPaymentReferenceMismatch),
		errors.Is(err, models.ErrSignature):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSlotUnavailable),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrUpstreamProcessor):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps store and processor details out of responses.
func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, models.ErrSlotUnavailable):
		return models.ErrSlotUnavailable.Error()
	case status == http.StatusBadGateway:
		return "payment processor unavailable, please try again"
	case status >= http.StatusInternalServerError:
		return "internal server error"
	}
	return err.Error()
}

// errorCode is the machine readable code clients branch on. Errors without
// one fall back to the status name.
func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrSlotUnavailable):
		return "SLOT_UNAVAILABLE"
	case errors.Is(err, models.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, models.ErrPaymentReferenceMismatch):
		return "PAYMENT_REFERENCE_MISMATCH"
	case errors.Is(err, models.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, models.ErrUpstreamProcessor):
		return "PAYMENT_PROCESSOR_UNAVAILABLE"
	case errors.Is(err, models.ErrValidation):
		return "VALIDATION_FAILED"
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	utils.WriteJSON(w, status, body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, utils.ErrorResponse(status, "", message))
}

func respondDomainError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	respondJSON(w, status, utils.ErrorResponse(status, errorCode(err), publicMessage(err, status)))
}
