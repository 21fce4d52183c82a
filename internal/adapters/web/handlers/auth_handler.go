package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finvault/guardian/internal/adapters/web/middleware"
	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/core/services/stepup"
	"github.com/finvault/guardian/internal/telemetry"
)

// AuthHandler serves the authentication lifecycle endpoints.
type AuthHandler struct {
	orchestrator *stepup.Orchestrator
	users        ports.UserRepository
}

func NewAuthHandler(orchestrator *stepup.Orchestrator, users ports.UserRepository) *AuthHandler {
	return &AuthHandler{orchestrator: orchestrator, users: users}
}

type signalPayload struct {
	Device       *domain.Device    `json:"device,omitempty"`
	Geo          *domain.Geo       `json:"geo,omitempty"`
	Challenge    *domain.Challenge `json:"challenge,omitempty"`
	IPASN        string            `json:"ip_asn,omitempty"`
	IPASNOrg     string            `json:"ip_asn_org,omitempty"`
	IPCity       string            `json:"ip_city,omitempty"`
	IPRegion     string            `json:"ip_region,omitempty"`
	IPCountry    string            `json:"ip_country,omitempty"`
	ScrollMaxPct *float64          `json:"scroll_max_pct,omitempty"`
	DwellMS      *float64          `json:"dwell_ms,omitempty"`
}

// metrics assembles the signal tuple, taking the client IP from the
// connection rather than the payload.
func (p *signalPayload) metrics(r *http.Request) *domain.LoginMetrics {
	ip, _ := signal.ClientIP(r)
	return &domain.LoginMetrics{
		Device:       p.Device,
		Geo:          p.Geo,
		IP:           ip,
		IPASN:        p.IPASN,
		IPASNOrg:     p.IPASNOrg,
		IPCity:       p.IPCity,
		IPRegion:     p.IPRegion,
		IPCountry:    p.IPCountry,
		ScrollMaxPct: p.ScrollMaxPct,
		DwellMS:      p.DwellMS,
	}
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.orchestrator.Register(r.Context(), stepup.RegisterInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		var conflict *stepup.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":       "identifier already registered",
				"email_taken": conflict.EmailTaken,
				"phone_taken": conflict.PhoneTaken,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"status":  "magic_link_sent",
	})
}

func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	onboarding, user, err := h.orchestrator.VerifyRegistration(r.Context(), req.Token)
	if err != nil {
		writeMagicLinkError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"onboarding_token": onboarding,
		"user_id":          user.ID,
	})
}

func writeMagicLinkError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stepup.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "magic link not found")
	case errors.Is(err, stepup.ErrLinkAlreadyUsed):
		writeError(w, http.StatusConflict, "magic link already used")
	case errors.Is(err, stepup.ErrLinkExpired):
		writeError(w, http.StatusGone, "magic link expired")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// HandleOnboard seeds the behaviour profile; requires an onboarding token.
func (h *AuthHandler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		signalPayload
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ip, _ := signal.ClientIP(r)
	err := h.orchestrator.Onboard(r.Context(), claims.UserID, stepup.OnboardInput{
		Device:    req.Device,
		Geo:       req.Geo,
		IP:        ip,
		Challenge: req.Challenge,
		Question:  req.Question,
		Answer:    req.Answer,
	})
	if err != nil {
		if errors.Is(err, stepup.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "onboarded"})
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		signalPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	decision, err := h.orchestrator.Login(r.Context(), stepup.LoginInput{
		Identifier: req.Identifier,
		Challenge:  req.Challenge,
		Metrics:    req.metrics(r),
	})
	if err != nil {
		if errors.Is(err, stepup.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	telemetry.LoginDecisions.WithLabelValues(string(decision.Kind)).Inc()
	telemetry.RiskScores.WithLabelValues("login").Observe(float64(decision.RiskScore))
	writeDecision(w, decision)
}

func (h *AuthHandler) HandleStepUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string              `json:"identifier"`
		Method     domain.StepUpMethod `json:"method"`
		signalPayload
		Answer     string                   `json:"answer,omitempty"`
		Credential map[string]any           `json:"credential,omitempty"`
		MagicToken string                   `json:"magic_token,omitempty"`
		Telemetry  *domain.SessionTelemetry `json:"telemetry,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	decision, err := h.orchestrator.StepUp(r.Context(), stepup.StepUpInput{
		Identifier: req.Identifier,
		Method:     req.Method,
		Challenge:  req.Challenge,
		Metrics:    req.metrics(r),
		Answer:     req.Answer,
		Credential: req.Credential,
		MagicToken: req.MagicToken,
		Telemetry:  req.Telemetry,
	})
	if err != nil {
		switch {
		case errors.Is(err, stepup.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, stepup.ErrMethodUnavailable):
			writeError(w, http.StatusBadRequest, "step-up method unavailable")
		case errors.Is(err, stepup.ErrLinkNotFound), errors.Is(err, stepup.ErrLinkAlreadyUsed), errors.Is(err, stepup.ErrLinkExpired):
			writeMagicLinkError(w, err)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	outcome := "failure"
	if decision.Kind == domain.DecisionAllow {
		outcome = "success"
	}
	telemetry.StepUpAttempts.WithLabelValues(string(req.Method), outcome).Inc()
	writeDecision(w, decision)
}

func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	decision, err := h.orchestrator.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeDecision(w, decision)
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  user.ID,
		"name":                user.Name,
		"email":               user.Email,
		"phone":               user.Phone,
		"role":                user.Role,
		"verified":            user.Verified,
		"onboarding_complete": user.OnboardingComplete,
	})
}

// writeDecision maps the transport-neutral decision onto HTTP status
// codes: allow 200, challenge 401, block 403.
func writeDecision(w http.ResponseWriter, d *domain.Decision) {
	status := http.StatusOK
	switch d.Kind {
	case domain.DecisionChallenge:
		status = http.StatusUnauthorized
	case domain.DecisionBlock:
		status = http.StatusForbidden
	}
	if d.SessionID != "" {
		w.Header().Set(middleware.SessionIDHeader, d.SessionID)
	}
	writeJSON(w, status, d)
}
