package guardian

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/ports"
)

// DriftMinSamples is the number of recent samples a user needs before the
// drift heuristic applies.
const DriftMinSamples = 5

// DriftMonitor periodically flags users whose recent session scores trend
// downward against the preceding window, a tell that the learned baseline
// may have drifted away from the true user.
type DriftMonitor struct {
	telemetry ports.TelemetryStore
	profiles  ports.ProfileStore
	interval  time.Duration
	sampleCap int
}

// NewDriftMonitor creates a drift monitor scanning at the given interval.
func NewDriftMonitor(telemetry ports.TelemetryStore, profiles ports.ProfileStore, interval time.Duration) *DriftMonitor {
	return &DriftMonitor{
		telemetry: telemetry,
		profiles:  profiles,
		interval:  interval,
		sampleCap: 500,
	}
}

// Run scans until ctx is cancelled.
func (m *DriftMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Scan(ctx); err != nil {
				slog.Warn("drift scan failed", "error", err)
			}
		}
	}
}

// Scan groups recent session samples per user, newest first, and flags a
// user when the two newest scores sum below the next three. Flags are
// cleared when the trend no longer holds.
func (m *DriftMonitor) Scan(ctx context.Context) error {
	samples, err := m.telemetry.RecentSessionSamples(ctx, m.sampleCap)
	if err != nil {
		return err
	}

	byUser := make(map[string][]int)
	for _, s := range samples {
		byUser[s.UserID] = append(byUser[s.UserID], s.Result.Score)
	}

	for userID, scores := range byUser {
		if len(scores) < DriftMinSamples {
			continue
		}
		recent := scores[0] + scores[1]
		prior := scores[2] + scores[3] + scores[4]
		flagged := recent < prior
		if err := m.profiles.SetDriftFlag(ctx, userID, flagged); err != nil {
			slog.Warn("setting drift flag failed", "user_id", userID, "error", err)
			continue
		}
		if flagged {
			slog.Info("baseline drift flagged", "user_id", userID, "recent_sum", recent, "prior_sum", prior)
		}
	}
	return nil
}
