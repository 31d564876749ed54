package auth_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
}

func TestHMACVerifier(t *testing.T) {
	v := auth.NewHMACVerifier("secret")
	token, err := v.Sign("driver-1", validClaims())
	require.NoError(t, err)

	sub, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", sub)

	_, err = auth.NewHMACVerifier("other").Verify(context.Background(), token)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	expired, err := v.Sign("driver-1", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), expired)
	assert.Error(t, err)

	noExpiry, err := v.Sign("driver-1", jwt.RegisteredClaims{})
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), noExpiry)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := auth.NewHMACVerifier("secret")
	token, err := v.Sign("driver-1", validClaims())
	require.NoError(t, err)

	var seen string
	h := auth.Middleware(v, logger.New(&bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/bookings/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "driver-1", seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestRequireSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	call := func(secret, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		auth.RequireSecret(secret, logger.New(&bytes.Buffer{}))(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("s3cret", "Bearer s3cret"))
	assert.Equal(t, http.StatusUnauthorized, call("s3cret", "Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, call("s3cret", ""))
	assert.Equal(t, http.StatusUnauthorized, call("", "Bearer "))
}

func TestNewVerifier_RequiresConfiguration(t *testing.T) {
	_, err := auth.NewVerifier(context.Background(), "", "")
	assert.Error(t, err)

	v, err := auth.NewVerifier(context.Background(), "", "secret")
	require.NoError(t, err)
	assert.IsType(t, &auth.HMACVerifier{}, v)
}
