package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LoginDecisions counts login outcomes by decision kind
	LoginDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "login_decisions_total",
			Help:      "Total number of login attempts by decision",
		},
		[]string{"decision"},
	)

	// StepUpAttempts counts step-up ceremonies by method and outcome
	StepUpAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "stepup_attempts_total",
			Help:      "Total number of step-up ceremonies by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// RiskScores observes the distribution of computed risk scores
	RiskScores = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guardian",
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"path"},
	)

	// TelemetryIngests counts in-session telemetry samples by resulting level
	TelemetryIngests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "telemetry_ingests_total",
			Help:      "Total number of session telemetry samples by risk level",
		},
		[]string{"level"},
	)

	// AlertsEmitted counts alerts delivered to the feed
	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "alerts_emitted_total",
			Help:      "Total number of alerts persisted to the feed",
		},
		[]string{"event_type"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; safe to call from tests and main alike.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(LoginDecisions)
		prometheus.DefaultRegisterer.Register(StepUpAttempts)
		prometheus.DefaultRegisterer.Register(RiskScores)
		prometheus.DefaultRegisterer.Register(TelemetryIngests)
		prometheus.DefaultRegisterer.Register(AlertsEmitted)
	})
}
