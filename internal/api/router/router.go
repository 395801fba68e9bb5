// Package router assembles the HTTP surface: public webhook and health
// endpoints, and the authenticated booking API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/internal/availability"
	"github.com/caredial/telehealth-platform/internal/consultation"
	httpmiddleware "github.com/caredial/telehealth-platform/internal/http/middleware"
	"github.com/caredial/telehealth-platform/internal/payments"
	"github.com/caredial/telehealth-platform/internal/video"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger               *logging.Logger
	JWTSecret            string
	CORSAllowedOrigins   []string
	AvailabilityHandler  *availability.Handler
	ConsultationHandler  *consultation.Handler
	PaymentsHandler      *payments.Handler
	PaymentsWebhook      *payments.WebhookHandler
	VideoHandler         *video.Handler
	MetricsHandler       http.Handler
	HealthCheck          http.HandlerFunc
	WebhookRatePerSecond float64
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: provider webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		if cfg.HealthCheck != nil {
			public.Get("/healthz", cfg.HealthCheck)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.PaymentsWebhook != nil {
			rate := cfg.WebhookRatePerSecond
			if rate <= 0 {
				rate = 20
			}
			public.With(httpmiddleware.RateLimit(rate, int(rate)*2)).
				Post("/webhooks/payments", cfg.PaymentsWebhook.Handle)
		}
	})

	// Authenticated booking API.
	r.Group(func(api chi.Router) {
		api.Use(auth.Middleware(cfg.JWTSecret))

		if cfg.AvailabilityHandler != nil {
			api.Get("/availability", cfg.AvailabilityHandler.Get)
		}
		if cfg.ConsultationHandler != nil {
			api.Route("/consultations", func(c chi.Router) {
				c.Post("/", cfg.ConsultationHandler.Create)
				c.Get("/{consultationID}", cfg.ConsultationHandler.Get)
				c.Patch("/{consultationID}/status", cfg.ConsultationHandler.PatchStatus)
				if cfg.PaymentsHandler != nil {
					c.Post("/{consultationID}/checkout", cfg.PaymentsHandler.InitiateCheckout)
				}
				if cfg.VideoHandler != nil {
					c.Post("/{consultationID}/join", cfg.VideoHandler.Join)
					c.Post("/{consultationID}/close", cfg.VideoHandler.Close)
				}
			})
		}
		if cfg.PaymentsHandler != nil {
			api.Get("/payments/success", cfg.PaymentsHandler.SuccessReturn)
		}
	})

	return r
}
