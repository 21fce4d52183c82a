package network

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/policy"
	"github.com/finvault/guardian/internal/core/services/signal"
)

// PromotionWindowDays bounds the trailing window inside which distinct
// login days count toward promotion.
const PromotionWindowDays = 30

// Tracker maintains per-user known network prefixes: distinct-day counting,
// promotion into the profile, and decay of stale prefixes.
type Tracker struct {
	profiles ports.ProfileStore
	counters ports.NetworkCounterStore
	policy   *policy.Policy
}

// NewTracker creates a known-network tracker.
func NewTracker(profiles ports.ProfileStore, counters ports.NetworkCounterStore, pol *policy.Policy) *Tracker {
	return &Tracker{profiles: profiles, counters: counters, policy: pol}
}

// RecordLogin registers a successful low-risk login from ip. The (user,
// prefix, day) tuple is counted at most once, and the prefix is promoted to
// the profile once it has been seen on enough distinct days in the trailing
// window. Private, loopback, and link-local addresses never train counters.
// Errors are logged, not returned; tracking must not fail a login.
func (t *Tracker) RecordLogin(ctx context.Context, userID, ip string, now time.Time) {
	if signal.IsPrivate(ip) {
		return
	}
	prefix := signal.Prefix(ip)
	if prefix == "" {
		return
	}

	if err := t.counters.Upsert(ctx, userID, prefix, domain.DayKey(now), now); err != nil {
		slog.Warn("network counter upsert failed", "user_id", userID, "prefix", prefix, "error", err)
		return
	}

	sinceDay := domain.DayKey(now.AddDate(0, 0, -PromotionWindowDays))
	days, err := t.counters.DistinctDays(ctx, userID, prefix, sinceDay)
	if err != nil {
		slog.Warn("network counter query failed", "user_id", userID, "prefix", prefix, "error", err)
		return
	}
	if days < t.policy.PromotionThreshold {
		return
	}

	if err := t.profiles.AddKnownNetwork(ctx, userID, prefix); err != nil {
		slog.Warn("known network promotion failed", "user_id", userID, "prefix", prefix, "error", err)
		return
	}
	slog.Info("known network promoted", "user_id", userID, "prefix", prefix, "distinct_days", days)
}

// Decay removes known networks last seen strictly before the configured
// horizon. Run periodically by the background sweeper and opportunistically
// after each successful login.
func (t *Tracker) Decay(ctx context.Context, userID string, now time.Time) error {
	profile, err := t.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.HasKnownNetworks() {
		return nil
	}

	cutoff := now.AddDate(0, 0, -t.policy.DecayDays)
	var stale []string
	for _, prefix := range profile.KnownNetworks {
		last, err := t.counters.LastSeen(ctx, userID, prefix)
		if err != nil {
			return err
		}
		// Zero (never counted) is before any cutoff; a sighting exactly
		// at the horizon is still fresh.
		if last.Before(cutoff) {
			stale = append(stale, prefix)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := t.profiles.RemoveKnownNetworks(ctx, userID, stale); err != nil {
		return err
	}
	slog.Info("known networks decayed", "user_id", userID, "removed", len(stale))
	return nil
}
