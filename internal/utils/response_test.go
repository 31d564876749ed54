package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "CONFLICT", StatusCode(http.StatusConflict))
	assert.Equal(t, "TOO_MANY_REQUESTS", StatusCode(http.StatusTooManyRequests))
	assert.Equal(t, "NON_AUTHORITATIVE_INFORMATION", StatusCode(http.StatusNonAuthoritativeInfo))
	assert.Equal(t, "UNKNOWN", StatusCode(599))
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(http.StatusConflict, "", "slot unavailable")
	assert.False(t, resp.Success)
	assert.Equal(t, "Conflict", resp.Message)
	assert.Equal(t, "CONFLICT", resp.Code)
	assert.Equal(t, "slot unavailable", resp.Error)

	resp = ErrorResponse(http.StatusConflict, "SLOT_UNAVAILABLE", "slot unavailable")
	assert.Equal(t, "SLOT_UNAVAILABLE", resp.Code)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, SuccessResponse("ok", map[string]int{"n": 1})))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, body.Data)
}
