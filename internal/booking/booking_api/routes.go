package booking_api

import (
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Options struct {
	AllowedOrigins  []string
	WebhookTimeout  time.Duration
	WebhookMaxBytes int64
	SweeperSecret   string
}

func (o Options) withDefaults() Options {
	if o.WebhookTimeout <= 0 {
		o.WebhookTimeout = 10 * time.Second
	}
	if o.WebhookMaxBytes <= 0 {
		o.WebhookMaxBytes = 65536
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	return o
}

// requestLogger records method, path, status and latency per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
	})
}

// Routes builds the service router. idempotency wraps booking creation and
// may be nil.
func (h *Handler) Routes(verifier auth.Verifier, idempotency func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.Options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if idempotency == nil {
		idempotency = func(next http.Handler) http.Handler { return next }
	}

	// --- Public Routes ---
	r.Get("/health", h.Health)
	r.Get("/pricing/minimum-rate", h.MinimumRate)
	r.Post("/pricing/quote", h.Quote)
	// authenticated by the processor's signature
	r.Post("/payments/webhook", h.StripeWebhook)

	// --- Machine Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSecret(h.Options.SweeperSecret, h.Logger))
		r.Post("/internal/sweep", h.Sweep)
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, h.Logger))

		r.Route("/bookings", func(r chi.Router) {
			r.With(idempotency).Post("/", h.CreateBooking)
			r.Get("/{bookingId}", h.GetBooking)
			r.Patch("/{bookingId}", h.UpdateBooking)
			r.Post("/{bookingId}/payment-intent", h.CreatePaymentIntent)
		})
		r.Post("/payments/verify", h.VerifyPayment)
		r.Get("/notifications", h.ListNotifications)
	})

	return r
}
