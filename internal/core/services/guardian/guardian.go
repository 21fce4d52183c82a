package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/risk"
	"github.com/finvault/guardian/internal/core/services/signature"
)

// Guardian continuously re-scores authenticated sessions from low-cadence
// telemetry and keeps the shared session risk state current.
type Guardian struct {
	sessions  ports.SessionStore
	profiles  ports.ProfileStore
	telemetry ports.TelemetryStore
	engine    *risk.Engine
	binder    *signature.Binder
	alerts    ports.AlertSink
	now       func() time.Time
}

// NewGuardian wires a session guardian.
func NewGuardian(sessions ports.SessionStore, profiles ports.ProfileStore, telemetry ports.TelemetryStore, engine *risk.Engine, binder *signature.Binder, alerts ports.AlertSink) *Guardian {
	return &Guardian{
		sessions:  sessions,
		profiles:  profiles,
		telemetry: telemetry,
		engine:    engine,
		binder:    binder,
		alerts:    alerts,
		now:       time.Now,
	}
}

// Ingest scores one telemetry sample for a session and refreshes the
// session state. A behaviour-signature mismatch short-circuits scoring and
// forces the session to medium. tokenSignature is the signature bound in
// the caller's access token.
func (g *Guardian) Ingest(ctx context.Context, sessionID, userID, tokenSignature string, sample domain.SessionTelemetry) (domain.Assessment, error) {
	var assessment domain.Assessment
	if !g.binder.Matches(tokenSignature, sample.Device, sample.IP) {
		assessment = domain.Assessment{
			Score:   50,
			Level:   domain.RiskMedium,
			Reasons: []string{"behavior_signature_mismatch"},
		}
		if g.alerts != nil {
			g.alerts.Emit(domain.AlertMediumRiskTransaction,
				fmt.Sprintf("session %s signature mismatch for user %s", sessionID, userID))
		}
	} else if profile, err := g.profiles.Get(ctx, userID); err != nil {
		// Store fault: hold the session at medium rather than scoring
		// against an empty profile.
		slog.Warn("profile load failed during session scoring", "user_id", userID, "error", err)
		assessment = domain.Assessment{
			Score:   50,
			Level:   domain.RiskMedium,
			Reasons: []string{"evaluation_degraded"},
		}
	} else {
		assessment = g.engine.ScoreSession(sample, profile)
	}

	now := g.now()
	state := domain.SessionState{
		UserID:    userID,
		RiskLevel: assessment.Level,
		RiskScore: assessment.Score,
		UpdatedAt: now,
	}
	if len(assessment.Reasons) > 0 {
		state.Reason = assessment.Reasons[0]
	}
	if err := g.sessions.Put(ctx, sessionID, state, domain.SessionTTL); err != nil {
		return assessment, fmt.Errorf("writing session state: %w", err)
	}

	if g.alerts != nil && assessment.Level == domain.RiskHigh {
		g.alerts.Emit(domain.AlertHighRiskTransaction,
			fmt.Sprintf("session %s escalated to high for user %s at score %d", sessionID, userID, assessment.Score))
	}

	err := g.telemetry.AppendSessionSample(ctx, domain.SessionSample{
		SessionID: sessionID,
		UserID:    userID,
		Telemetry: sample,
		Result:    assessment,
		TS:        now,
	})
	if err != nil {
		slog.Warn("session sample append failed", "session_id", sessionID, "error", err)
	}

	return assessment, nil
}

// Status returns the current session state, or nil when the session has
// expired or was never scored. Absent state is treated as low risk by the
// middleware.
func (g *Guardian) Status(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return g.sessions.Get(ctx, sessionID)
}

// End removes a session's risk state on logout.
func (g *Guardian) End(ctx context.Context, sessionID string) error {
	return g.sessions.Delete(ctx, sessionID)
}
