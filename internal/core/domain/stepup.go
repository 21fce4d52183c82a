package domain

import "time"

// StepUpMethod identifies a supplementary verification ceremony.
type StepUpMethod string

const (
	StepUpBehavioral    StepUpMethod = "behavioral"
	StepUpTrustedDevice StepUpMethod = "trusted_device"
	StepUpMagicLink     StepUpMethod = "magic_link"
	StepUpWebAuthn      StepUpMethod = "webauthn"
	StepUpContext       StepUpMethod = "context"
	StepUpAmbient       StepUpMethod = "ambient"
)

// DecisionKind is the abstract outcome of a login or step-up attempt.
type DecisionKind string

const (
	DecisionAllow     DecisionKind = "allow"
	DecisionChallenge DecisionKind = "challenge"
	DecisionBlock     DecisionKind = "block"
)

// Decision is the transport-neutral outcome returned by the orchestrator.
// Mapping to HTTP status codes happens at the API edge only.
type Decision struct {
	Kind         DecisionKind   `json:"decision"`
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	Methods      []StepUpMethod `json:"methods,omitempty"`
	Reasons      []string       `json:"reasons,omitempty"`
	RiskScore    int            `json:"risk_score"`
	Level        RiskLevel      `json:"risk"`
	User         *User          `json:"user,omitempty"`
}

// StepUpRecord is one append-only entry in the step-up log.
type StepUpRecord struct {
	User      string            `json:"user"`
	Method    StepUpMethod      `json:"method"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	RiskScore int               `json:"risk_score,omitempty"`
	Reasons   []string          `json:"reasons,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MagicLink is a one-shot login token. Only the bcrypt hash of the secret
// is stored; the full token is <ID>.<secret>.
type MagicLink struct {
	ID         string
	UserID     string
	Email      string
	SecretHash string
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// TrustedDevice records a device/network pair confirmed for a user.
type TrustedDevice struct {
	UserID     string
	DeviceHash string
	IPPrefix   string
	CreatedAt  time.Time
}

// ContextChallenge holds the per-user security question seeded during
// onboarding. The answer comparison is case-insensitive.
type ContextChallenge struct {
	UserID   string
	Question string
	Answer   string
}
