package utils

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// APIResponse is the envelope for health checks and error bodies. Resource
// endpoints return their model directly.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Code      string      `json:"code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse builds a failure body. An empty code falls back to the
// status name, e.g. 409 -> "CONFLICT".
func ErrorResponse(status int, code, message string) APIResponse {
	if code == "" {
		code = StatusCode(status)
	}
	return APIResponse{
		Success:   false,
		Message:   http.StatusText(status),
		Code:      code,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}

// StatusCode turns an HTTP status into an upper snake case code.
func StatusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "UNKNOWN"
	}
	text = strings.ReplaceAll(text, "-", " ")
	return strings.ToUpper(strings.Join(strings.Fields(text), "_"))
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
