package handlers

import (
	"net/http"
	"strconv"

	"github.com/finvault/guardian/internal/adapters/web/middleware"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/alert"
	"github.com/finvault/guardian/internal/core/services/audit"
)

// AdminHandler serves the operator feeds: audit log, step-up log, alerts.
type AdminHandler struct {
	auditor    *audit.Recorder
	stepLog    ports.StepUpLogStore
	dispatcher *alert.Dispatcher
}

func NewAdminHandler(auditor *audit.Recorder, stepLog ports.StepUpLogStore, dispatcher *alert.Dispatcher) *AdminHandler {
	return &AdminHandler{auditor: auditor, stepLog: stepLog, dispatcher: dispatcher}
}

func limitParam(r *http.Request, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		return v
	}
	return fallback
}

func (h *AdminHandler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.auditor.Recent(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *AdminHandler) HandleStepUpLog(w http.ResponseWriter, r *http.Request) {
	records, err := h.stepLog.Recent(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *AdminHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.dispatcher.Recent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleCSRFToken issues a fresh double-submit token.
func (h *AdminHandler) HandleCSRFToken(w http.ResponseWriter, r *http.Request) {
	tok, err := middleware.IssueCSRFToken(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": tok})
}
