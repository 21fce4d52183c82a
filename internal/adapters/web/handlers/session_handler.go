package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/finvault/guardian/internal/adapters/web/middleware"
	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/guardian"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/telemetry"
)

// SessionHandler serves the in-session telemetry and status endpoints.
type SessionHandler struct {
	guardian *guardian.Guardian
}

func NewSessionHandler(g *guardian.Guardian) *SessionHandler {
	return &SessionHandler{guardian: g}
}

// HandleTelemetry ingests one telemetry sample for the caller's session.
func (h *SessionHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := middleware.SessionID(r)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id missing")
		return
	}

	var sample domain.SessionTelemetry
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if sample.IP == "" {
		sample.IP, _ = signal.ClientIP(r)
	}

	assessment, err := h.guardian.Ingest(r.Context(), sessionID, claims.UserID, claims.BehaviorSignature, sample)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	telemetry.TelemetryIngests.WithLabelValues(string(assessment.Level)).Inc()
	telemetry.RiskScores.WithLabelValues("session").Observe(float64(assessment.Score))
	w.Header().Set(middleware.SessionIDHeader, sessionID)
	writeJSON(w, http.StatusOK, assessment)
}

// HandleStatus returns the caller's current session risk state.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id missing")
		return
	}
	state, err := h.guardian.Status(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"risk_level": domain.RiskLow,
			"tracked":    false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"risk_level": state.RiskLevel,
		"risk_score": state.RiskScore,
		"updated_at": state.UpdatedAt,
		"reason":     state.Reason,
		"tracked":    true,
	})
}

// HandleLogout drops the caller's session risk state.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r)
	if sessionID != "" {
		if err := h.guardian.End(r.Context(), sessionID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
