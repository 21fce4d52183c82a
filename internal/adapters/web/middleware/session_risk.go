package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/guardian"
)

// SessionIDHeader carries the session id; clients echo the value they
// received at login. A session_id query parameter is accepted as fallback
// for websocket clients that cannot set headers.
const SessionIDHeader = "X-Session-ID"

// SessionID resolves the caller's session id from the header, the query
// string, or the access-token claims.
func SessionID(r *http.Request) string {
	if id := r.Header.Get(SessionIDHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	if claims := ClaimsFrom(r); claims != nil {
		return claims.SessionID
	}
	return ""
}

// SessionRiskMiddleware gates requests on the session's current risk
// state: high blocks, medium demands a step-up, absent or low passes.
func SessionRiskMiddleware(g *guardian.Guardian) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionID(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set(SessionIDHeader, sessionID)

			state, err := g.Status(r.Context(), sessionID)
			if err != nil {
				slog.Warn("session risk lookup failed", "session_id", sessionID, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if state == nil {
				next.ServeHTTP(w, r)
				return
			}

			switch state.RiskLevel {
			case domain.RiskHigh:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]any{
					"error":      "session blocked",
					"risk":       state.RiskLevel,
					"risk_score": state.RiskScore,
					"reason":     state.Reason,
				})
			case domain.RiskMedium:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"error":      "step-up required",
					"risk":       state.RiskLevel,
					"risk_score": state.RiskScore,
					"reason":     state.Reason,
				})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
