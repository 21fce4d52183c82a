package baseline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/core/services/signature"
)

// Alpha is the EWMA smoothing factor for behavioural baselines.
const Alpha = 0.3

// StableStreak is the warm-up length after which baselines are considered
// stable.
const StableStreak = 5

// Learner adapts per-user behavioural baselines. It is invoked only after
// low-risk decisions; the gates live with the orchestrator.
type Learner struct {
	profiles ports.ProfileStore
	binder   *signature.Binder
}

// NewLearner creates a baseline learner.
func NewLearner(profiles ports.ProfileStore, binder *signature.Binder) *Learner {
	return &Learner{profiles: profiles, binder: binder}
}

// Learn folds a low-risk observation into the user's profile: EWMA update
// of each challenge dimension, warm-up streak, version bump with history
// snapshot, and device/geo/signature enrichment. Learning is best-effort:
// persistence failures are logged, never propagated, so the authentication
// response cannot fail on a learner error.
func (l *Learner) Learn(ctx context.Context, userID string, challenge *domain.Challenge, metrics *domain.LoginMetrics, now time.Time) {
	if err := l.learn(ctx, userID, challenge, metrics, now); err != nil {
		slog.Warn("baseline learning failed", "user_id", userID, "error", err)
	}
}

func (l *Learner) learn(ctx context.Context, userID string, challenge *domain.Challenge, metrics *domain.LoginMetrics, now time.Time) error {
	profile, err := l.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &domain.BehaviorProfile{UserID: userID}
	}

	if challenge != nil {
		applyChallenge(&profile.Baselines, challenge)
	}

	profile.LowRiskStreak++
	if profile.LowRiskStreak >= StableStreak {
		// Sticky once set; demotion happens by non-low outcomes gating
		// further learning, not by decrementing the streak.
		profile.BaselineStable = true
	}

	profile.BaselineVersion++
	profile.PushSnapshot(domain.BaselineSnapshot{
		Version:   profile.BaselineVersion,
		Timestamp: now,
		Baselines: profile.Baselines,
	})

	var ipPrefix string
	if metrics != nil {
		if metrics.Device != nil && !metrics.Device.Empty() {
			canonical := signal.CanonicalDevice(*metrics.Device)
			profile.DeviceFingerprint = &canonical
		}
		if metrics.Geo != nil && !metrics.Geo.Fallback {
			geo := *metrics.Geo
			profile.Geo = &geo
		}
		if metrics.IPCity != "" || metrics.IPRegion != "" || metrics.IPCountry != "" {
			profile.IPGeo = &domain.IPGeo{
				City:    metrics.IPCity,
				Region:  metrics.IPRegion,
				Country: metrics.IPCountry,
			}
		}
		ipPrefix = signal.Prefix(metrics.IP)
	}

	profile.BehaviorSignature = l.binder.Compute(profile.DeviceFingerprint, ipPrefix)
	profile.LastSeen = now

	return l.profiles.Save(ctx, profile)
}

func applyChallenge(b *domain.Baselines, challenge *domain.Challenge) {
	switch challenge.Type {
	case domain.ChallengeTyping:
		if challenge.Typing == nil {
			return
		}
		b.Typing.WPM = ewma(b.Typing.WPM, challenge.Typing.WPM)
		b.Typing.Err = ewma(b.Typing.Err, challenge.Typing.ErrorRate)
		b.Typing.Timing = ewma(b.Typing.Timing, challenge.Typing.TimingMean)
	case domain.ChallengeMouse, domain.ChallengeTouch:
		if challenge.Pointer == nil {
			return
		}
		b.Pointer.PathLen = ewma(b.Pointer.PathLen, challenge.Pointer.PathLen)
		b.Pointer.Clicks = ewma(b.Pointer.Clicks, challenge.Pointer.Clicks)
	}
}

// ewma folds observation x into dim. An unseeded dimension takes the
// observation as its mean with unit variance.
func ewma(dim domain.BaselineDim, x float64) domain.BaselineDim {
	if !dim.Set {
		return domain.BaselineDim{Mean: x, Var: 1.0, Std: 1.0, Set: true}
	}
	mean := Alpha*x + (1-Alpha)*dim.Mean
	variance := Alpha*(x-mean)*(x-mean) + (1-Alpha)*dim.Var
	return domain.BaselineDim{
		Mean: mean,
		Var:  variance,
		Std:  math.Sqrt(variance),
		Set:  true,
	}
}
