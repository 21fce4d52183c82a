package domain

import "time"

// AlertType enumerates the events of interest emitted on the alert channel.
type AlertType string

const (
	AlertFailedLogin            AlertType = "failed_login"
	AlertHighRiskLogin          AlertType = "high_risk_login"
	AlertMediumRiskLogin        AlertType = "medium_risk_login"
	AlertSuccessfulLogin        AlertType = "successful_login"
	AlertFailedAdditionalVerify AlertType = "failed_additional_verification"
	AlertHighRiskTransaction    AlertType = "high_risk_transaction"
	AlertMediumRiskTransaction  AlertType = "medium_risk_transaction"
	AlertManualOverride         AlertType = "manual_override"
)

// Alert is one decoupled event delivered to the alert sink.
type Alert struct {
	EventType AlertType `json:"event_type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
