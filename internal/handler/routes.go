package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/security/audit"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
	"github.com/aryan0dhankhar/farmorders/internal/security/middleware"
	"github.com/aryan0dhankhar/farmorders/internal/security/ratelimit"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Orders    *OrderHandler
	Absences  *AbsenceHandler
	Catalog   *CatalogHandler
	Dashboard *DashboardHandler
	Health    *HealthHandler
	Changes   *ChangesHandler
}

// Register mounts the API on mux
func (h Handlers) Register(mux *http.ServeMux, log *slog.Logger) {
	credentials := middleware.RequireFields(log, "username", "password")

	// Auth
	mux.Handle("POST /api/auth/login", credentials(http.HandlerFunc(h.Auth.Login)))
	mux.Handle("POST /api/auth/register", credentials(http.HandlerFunc(h.Auth.Register)))
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.HandleFunc("GET /api/auth/me", h.Auth.Me)
	mux.HandleFunc("POST /api/auth/change-password", h.Auth.ChangePassword)

	mux.Handle("GET /api/catalog", h.Catalog)
	mux.Handle("GET /api/dashboard", h.Dashboard)

	// Users
	mux.HandleFunc("GET /api/users", h.Users.List)
	mux.HandleFunc("POST /api/users", h.Users.Create)
	mux.HandleFunc("DELETE /api/users/{id}", h.Users.Delete)
	mux.HandleFunc("GET /api/users/{id}/profile", h.Dashboard.Profile)

	// Orders
	mux.HandleFunc("GET /api/orders", h.Orders.List)
	mux.HandleFunc("POST /api/orders", h.Orders.Create)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.Get)
	mux.HandleFunc("DELETE /api/orders/{id}", h.Orders.Delete)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.Orders.SetStatus)
	mux.HandleFunc("POST /api/orders/{id}/accept", h.Orders.Accept)
	mux.HandleFunc("PUT /api/orders/{id}/progress/{blockId}", h.Orders.Progress)
	mux.HandleFunc("POST /api/orders/{id}/submit", h.Orders.Submit)
	mux.HandleFunc("POST /api/orders/{id}/confirm/{userId}", h.Orders.Confirm)

	// Absences
	mux.HandleFunc("GET /api/absences", h.Absences.List)
	mux.HandleFunc("POST /api/absences", h.Absences.Create)
	mux.HandleFunc("POST /api/absences/{id}/approve", h.Absences.Approve)
	mux.HandleFunc("POST /api/absences/{id}/reject", h.Absences.Reject)

	// Change feed
	if h.Changes != nil {
		mux.Handle("GET /ws/changes", h.Changes)
	}

	// Health and metrics
	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.HandleFunc("GET /readyz", h.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// StackConfig configures the middleware chain in front of the API
type StackConfig struct {
	Tokens         *auth.TokenManager
	Revoked        middleware.RevocationChecker
	Limiter        *ratelimit.Limiter
	LoginAttempts  int
	LoginWindow    time.Duration
	Audit          *audit.Logger
	AllowedOrigins []string
	TrustedProxies middleware.TrustedProxies
	Logger         *slog.Logger
}

// Wrap applies the middleware chain to mux. Metrics sit directly on the mux
// so route patterns are visible to them.
func Wrap(mux *http.ServeMux, cfg StackConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = 10
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = time.Minute
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger(log)
	}

	var h http.Handler = metrics.HTTPMetricsMiddleware(mux)
	h = middleware.AuditMiddleware(cfg.Audit)(h)
	if cfg.Limiter != nil {
		h = middleware.RateLimitMiddleware(cfg.Limiter, log)(h)
	}
	h = middleware.JWTMiddleware(cfg.Tokens, cfg.Revoked, log)(h)
	h = middleware.ValidateJSONContentType(log)(h)
	if cfg.Limiter != nil {
		h = middleware.LoginThrottle(cfg.Limiter, cfg.LoginAttempts, cfg.LoginWindow, cfg.TrustedProxies, log)(h)
	}
	h = middleware.SanitizeInputs(log, "filter")(h)
	h = middleware.CORS(cfg.AllowedOrigins)(h)
	h = middleware.RequestID(log)(h)
	return h
}
