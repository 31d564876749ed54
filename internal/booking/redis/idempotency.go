package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyPrefix = "idempotency:"
	inFlightMarker    = "in-flight"
)

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped by the caller identity returned from scope. A request that
// arrives while the first one is still running gets 409.
func Idempotency(client *redis.Client, ttl time.Duration, scope func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			cacheKey := idempotencyPrefix + scope(r) + ":" + key

			claimed, err := client.SetNX(ctx, cacheKey, inFlightMarker, ttl).Result()
			if err != nil {
				// Redis unavailable - proceed without idempotency
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				replay(ctx, w, client, cacheKey)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			// the key must be settled even when the client has gone away
			ctx = context.WithoutCancel(ctx)

			// 5xx responses are not replayed, the client may retry them
			if cw.status >= 500 || cw.status == 0 {
				client.Del(ctx, cacheKey)
				return
			}
			headers := make(http.Header)
			if ct := cw.Header().Get("Content-Type"); ct != "" {
				headers.Set("Content-Type", ct)
			}
			data, err := json.Marshal(cachedResponse{StatusCode: cw.status, Body: cw.body.Bytes(), Headers: headers})
			if err != nil {
				client.Del(ctx, cacheKey)
				return
			}
			client.Set(ctx, cacheKey, data, ttl)
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, client *redis.Client, cacheKey string) {
	data, err := client.Get(ctx, cacheKey).Bytes()
	if err != nil || string(data) == inFlightMarker {
		http.Error(w, "A request with this Idempotency-Key is already in progress", http.StatusConflict)
		return
	}
	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		http.Error(w, "A request with this Idempotency-Key is already in progress", http.StatusConflict)
		return
	}
	for k, v := range cached.Headers {
		for _, val := range v {
			w.Header().Add(k, val)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	w.Write(cached.Body)
}
