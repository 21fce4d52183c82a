package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finvault/guardian/internal/adapters/web/middleware"
	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/token"
)

// SetupRoutes builds the route table.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.CSRFMiddleware)

	// Rate limiters for the unauthenticated surface
	loginLimit := middleware.RateLimitMiddleware(middleware.NewRateLimiter(5, 1*time.Minute))
	registerLimit := middleware.RateLimitMiddleware(middleware.NewRateLimiter(3, 1*time.Minute))

	// Public authentication surface
	r.Handle("/api/auth/register", registerLimit(http.HandlerFunc(s.AuthHandler.HandleRegister))).Methods(http.MethodPost)
	r.Handle("/api/auth/verify", loginLimit(http.HandlerFunc(s.AuthHandler.HandleVerify))).Methods(http.MethodPost)
	r.Handle("/api/auth/login", loginLimit(http.HandlerFunc(s.AuthHandler.HandleLogin))).Methods(http.MethodPost)
	r.Handle("/api/auth/stepup", loginLimit(http.HandlerFunc(s.AuthHandler.HandleStepUp))).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/refresh", s.AuthHandler.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/csrf", s.AdminHandler.HandleCSRFToken).Methods(http.MethodGet)

	// Onboarding requires the short-lived onboarding token
	onboardingAuth := middleware.AuthMiddleware(s.Tokens, token.ScopeOnboarding)
	r.Handle("/api/auth/onboard", onboardingAuth(http.HandlerFunc(s.AuthHandler.HandleOnboard))).Methods(http.MethodPost)

	// Protected surface: access token plus the session risk gate
	auth := middleware.AuthMiddleware(s.Tokens, token.ScopeAccess)
	riskGate := middleware.SessionRiskMiddleware(s.Guardian)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(riskGate(h))
	}

	r.Handle("/api/me", protect(s.AuthHandler.HandleMe)).Methods(http.MethodGet)
	r.Handle("/api/session/status", auth(http.HandlerFunc(s.SessionHandler.HandleStatus))).Methods(http.MethodGet)
	r.Handle("/api/session/telemetry", auth(http.HandlerFunc(s.SessionHandler.HandleTelemetry))).Methods(http.MethodPost)
	r.Handle("/api/auth/logout", auth(http.HandlerFunc(s.SessionHandler.HandleLogout))).Methods(http.MethodPost)

	// Operator feeds (admin only)
	requireAdmin := middleware.RoleMiddleware(domain.RoleAdmin)
	protectAdmin := func(h http.HandlerFunc) http.Handler {
		return auth(requireAdmin(h))
	}
	r.Handle("/api/admin/audit", protectAdmin(s.AdminHandler.HandleAuditLog)).Methods(http.MethodGet)
	r.Handle("/api/admin/stepups", protectAdmin(s.AdminHandler.HandleStepUpLog)).Methods(http.MethodGet)
	r.Handle("/api/admin/alerts", protectAdmin(s.AdminHandler.HandleAlerts)).Methods(http.MethodGet)
	r.Handle("/ws/alerts", protectAdmin(s.AlertHub.HandleAlerts)).Methods(http.MethodGet)

	// Metrics endpoint (admin only)
	r.Handle("/metrics", protectAdmin(func(w http.ResponseWriter, req *http.Request) {
		promhttp.Handler().ServeHTTP(w, req)
	})).Methods(http.MethodGet)

	return r
}
