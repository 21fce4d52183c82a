package ports

import (
	"context"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
)

// UserRepository owns the identity principals.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIdentifier resolves a user by email, phone, or name.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	// FindConflict returns an existing user sharing the email or phone.
	FindConflict(ctx context.Context, email, phone string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// ProfileStore owns the per-user behaviour profile documents.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*domain.BehaviorProfile, error)
	Save(ctx context.Context, profile *domain.BehaviorProfile) error
	// AddKnownNetwork inserts prefix into the promoted set (idempotent).
	AddKnownNetwork(ctx context.Context, userID, prefix string) error
	RemoveKnownNetworks(ctx context.Context, userID string, prefixes []string) error
	SetDriftFlag(ctx context.Context, userID string, flagged bool) error
}

// ErrNotFound-style sentinels live with the adapters; stores return
// (nil, nil) for missing documents so scoring can degrade gracefully.

// SessionStore is the shared session-state store written by the guardian
// and read by request middleware. Writes to one session id are serialised
// by keyed write; last write wins.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, state domain.SessionState, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

// NetworkCounterStore owns the per-user prefix distinct-day counters.
type NetworkCounterStore interface {
	Upsert(ctx context.Context, userID, prefix, day string, now time.Time) error
	DistinctDays(ctx context.Context, userID, prefix, sinceDay string) (int, error)
	// LastSeen returns the most recent counter timestamp for the prefix,
	// or the zero time when no counter exists.
	LastSeen(ctx context.Context, userID, prefix string) (time.Time, error)
}

// GeoEventStore owns raw geo events and their tile aggregates.
type GeoEventStore interface {
	Insert(ctx context.Context, ev domain.GeoEvent) error
	EventsSince(ctx context.Context, since time.Time) ([]domain.GeoEvent, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) error
	UpsertTile(ctx context.Context, userID string, tileLat, tileLon float64, count int64, avgAccuracy float64, lastSeen time.Time) error
	DeleteTilesBefore(ctx context.Context, cutoff time.Time) error
}

// AuditRepository records login attempts.
type AuditRepository interface {
	LogLoginAttempt(ctx context.Context, attempt domain.LoginAttempt) error
	RecentAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error)
}

// StepUpLogStore is the append-only step-up protocol log.
type StepUpLogStore interface {
	Append(ctx context.Context, rec domain.StepUpRecord) error
	Recent(ctx context.Context, limit int) ([]domain.StepUpRecord, error)
}

// MagicLinkStore owns one-shot magic-link tokens.
type MagicLinkStore interface {
	CreateLink(ctx context.Context, link domain.MagicLink) error
	GetLink(ctx context.Context, id string) (*domain.MagicLink, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

// TrustedDeviceStore owns confirmed device/network pairs.
type TrustedDeviceStore interface {
	IsTrusted(ctx context.Context, userID, deviceHash, ipPrefix string) (bool, error)
	Trust(ctx context.Context, td domain.TrustedDevice) error
}

// ContextChallengeStore owns the per-user security questions.
type ContextChallengeStore interface {
	GetChallenge(ctx context.Context, userID string) (*domain.ContextChallenge, error)
	Seed(ctx context.Context, ch domain.ContextChallenge) error
}

// TelemetryStore owns device/IP enrichment records and session samples.
type TelemetryStore interface {
	UpsertDevice(ctx context.Context, rec domain.DeviceRecord) error
	UpsertIP(ctx context.Context, rec domain.IPRecord) error
	LinkDeviceIP(ctx context.Context, deviceHash, ip string, now time.Time) error
	AppendSessionSample(ctx context.Context, sample domain.SessionSample) error
	// RecentSessionSamples returns samples ordered newest first.
	RecentSessionSamples(ctx context.Context, limit int) ([]domain.SessionSample, error)
}

// AlertStore persists the bounded alert feed.
type AlertStore interface {
	AppendAlert(ctx context.Context, alert domain.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
}
