package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caresignal/triage-platform/internal/assessment"
	"github.com/caresignal/triage-platform/internal/distress"
	"github.com/caresignal/triage-platform/internal/escalation"
	httpmiddleware "github.com/caresignal/triage-platform/internal/http/middleware"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	AssessmentHandler  *assessment.Handler
	DistressHandler    *distress.Handler
	EscalationHandler  *escalation.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// CaregiverAuthSecret protects escalation and history endpoints. An
	// empty secret skips auth, which is only acceptable in local development.
	CaregiverAuthSecret string

	// Public endpoint rate limiting; zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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

	// Public endpoints (health, metrics, patient-facing triage)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Route("/v1", func(v1 chi.Router) {
			if cfg.RateLimitPerSecond > 0 {
				v1.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
			}
			if cfg.AssessmentHandler != nil {
				v1.Post("/assessments", cfg.AssessmentHandler.Check)
			}
			if cfg.DistressHandler != nil {
				v1.Get("/distress/stream", cfg.DistressHandler.HandleStream)
				v1.Get("/distress/{sessionID}", cfg.DistressHandler.Status)
				v1.Post("/distress/{sessionID}/dismiss", cfg.DistressHandler.Dismiss)
				v1.Post("/distress/{sessionID}/help", cfg.DistressHandler.RequestHelp)
				v1.Delete("/distress/{sessionID}", cfg.DistressHandler.CloseSession)
			}
		})
	})

	// Caregiver endpoints (JWT-protected)
	r.Route("/v1/care", func(care chi.Router) {
		if cfg.CaregiverAuthSecret != "" {
			care.Use(httpmiddleware.CaregiverJWT(cfg.CaregiverAuthSecret))
		}
		if cfg.EscalationHandler != nil {
			care.Get("/escalations/{eventID}", cfg.EscalationHandler.Get)
			care.Post("/escalations/{eventID}/ack", cfg.EscalationHandler.Acknowledge)
		}
		if cfg.AssessmentHandler != nil {
			care.Get("/assessments/{assessmentID}", cfg.AssessmentHandler.Get)
			care.Get("/patients/{patientID}/assessments", cfg.AssessmentHandler.History)
		}
	})

	return r
}
