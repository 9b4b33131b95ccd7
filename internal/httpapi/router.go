package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BasePath prefixes every route.
const BasePath = "/api/auth"

// Handler serves the auth API.
type Handler struct {
	engine   *authcore.Engine
	activity authcore.ActivityReader
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewHandler returns a Handler backed by engine.
func NewHandler(engine *authcore.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WithActivity enables GET /activity backed by reader.
func (h *Handler) WithActivity(reader authcore.ActivityReader) *Handler {
	h.activity = reader
	return h
}

// Routes mounts every endpoint and wraps them with request logging and
// security headers.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(LoggingMiddleware(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeadersMiddleware())
	r.Use(ClientContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", prometheus.New(h.engine).Handler())

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(h.engine))

			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
			r.Post("/resend-verification", h.ResendVerification)
			r.Post("/2fa/setup", h.TwoFactorSetup)
			r.Post("/2fa/verify", h.TwoFactorVerify)
			r.Post("/2fa/disable", h.TwoFactorDisable)
			r.Get("/sessions", h.ListSessions)
			r.Post("/sessions/revoke", h.RevokeSession)
			if h.activity != nil {
				r.Get("/activity", h.Activity)
			}

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(authcore.RoleAdmin))
				r.Put("/users/{id}/role", h.SetRole)
				r.Put("/users/{id}/permissions", h.SetPermissions)
				r.Get("/metrics", h.Metrics)
			})
		})
	})
	return r
}
