package domain

import "time"

// SessionTTL is how long a session risk entry survives without refresh.
const SessionTTL = 3600 * time.Second

// SessionState is the per-session risk entry maintained by the guardian
// and consulted by request middleware. Missing state is treated as low.
type SessionState struct {
	UserID    string    `json:"user_id"`
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore int       `json:"risk_score"`
	UpdatedAt time.Time `json:"updated_at"`
	Reason    string    `json:"reason,omitempty"`
}

// SessionSample is the thin audit record appended on each telemetry ingest.
type SessionSample struct {
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	Telemetry SessionTelemetry `json:"telemetry"`
	Result    Assessment       `json:"result"`
	TS        time.Time        `json:"ts"`
}
