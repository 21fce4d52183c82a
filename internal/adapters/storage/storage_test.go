package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/guardian/internal/core/domain"
)

func newTestAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	adapter, err := NewSQLiteAdapter(filepath.Join(t.TempDir(), "guardian.db"))
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	alice := &domain.User{
		ID:        "u1",
		Name:      "alice",
		Email:     "alice@example.com",
		Phone:     "+15550100",
		Role:      domain.RoleUser,
		CreatedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.Create(ctx, alice))

	// 1. GetByID round-trips; a miss is nil, nil.
	got, err := a.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.False(t, got.Verified)

	got, err = a.GetByID(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 2. GetByIdentifier resolves email, phone, and name.
	for _, ident := range []string{"alice@example.com", "+15550100", "alice"} {
		got, err = a.GetByIdentifier(ctx, ident)
		require.NoError(t, err)
		require.NotNil(t, got, ident)
		assert.Equal(t, "u1", got.ID)
	}
	got, err = a.GetByIdentifier(ctx, "bob@example.com")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 3. FindConflict matches either identifier; empty inputs never match.
	got, err = a.FindConflict(ctx, "alice@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	got, err = a.FindConflict(ctx, "other@example.com", "+15550100")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = a.FindConflict(ctx, "", "")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 4. Update persists verification state.
	verifiedAt := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	alice.Verified = true
	alice.VerifiedAt = &verifiedAt
	alice.OnboardingComplete = true
	require.NoError(t, a.Update(ctx, alice))
	got, err = a.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.True(t, got.OnboardingComplete)
	require.NotNil(t, got.VerifiedAt)
	assert.True(t, got.VerifiedAt.Equal(verifiedAt))

	// 5. AllUserIDs lists every principal.
	require.NoError(t, a.Create(ctx, &domain.User{ID: "u2", Name: "bob"}))
	ids, err := a.AllUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestProfileRepo(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	// 1. Unknown user reads as nil, nil.
	got, err := a.Get(ctx, "u1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 2. Save/Get round-trips the JSON document.
	profile := &domain.BehaviorProfile{
		UserID:            "u1",
		DeviceFingerprint: &domain.Device{Browser: "chrome 119", OS: "windows", Screen: "1920x1080", Timezone: "America/New_York"},
		Geo:               &domain.Geo{Latitude: 40.7128, Longitude: -74.0060, Accuracy: 20},
		IPGeo:             &domain.IPGeo{City: "New York", Region: "NY", Country: "US"},
		KnownNetworks:     []string{"203.0.113.0/24"},
		Baselines: domain.Baselines{
			Typing: domain.TypingBaseline{
				WPM: domain.BaselineDim{Mean: 70, Var: 25, Std: 5, Set: true},
			},
		},
		BaselineVersion:   4,
		BaselineStable:    true,
		LowRiskStreak:     5,
		BehaviorSignature: "abc123",
		LastSeen:          time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.Save(ctx, profile))

	got, err = a.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	require.NotNil(t, got.DeviceFingerprint)
	assert.Equal(t, "chrome 119", got.DeviceFingerprint.Browser)
	assert.Equal(t, []string{"203.0.113.0/24"}, got.KnownNetworks)
	assert.Equal(t, 70.0, got.Baselines.Typing.WPM.Mean)
	assert.True(t, got.Baselines.Typing.WPM.Set)
	assert.Equal(t, 4, got.BaselineVersion)
	assert.True(t, got.BaselineStable)
	assert.Equal(t, "abc123", got.BehaviorSignature)
	assert.False(t, got.DriftFlagged)

	// 3. AddKnownNetwork appends once; repeats are no-ops.
	require.NoError(t, a.AddKnownNetwork(ctx, "u1", "198.51.100.0/24"))
	require.NoError(t, a.AddKnownNetwork(ctx, "u1", "198.51.100.0/24"))
	got, err = a.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.0/24", "198.51.100.0/24"}, got.KnownNetworks)

	// 4. Promotion against a missing profile is an error.
	assert.Error(t, a.AddKnownNetwork(ctx, "nobody", "203.0.113.0/24"))

	// 5. RemoveKnownNetworks drops only the listed prefixes.
	require.NoError(t, a.RemoveKnownNetworks(ctx, "u1", []string{"203.0.113.0/24", "192.0.2.0/24"}))
	got, err = a.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.0/24"}, got.KnownNetworks)

	// 6. SetDriftFlag persists both directions.
	require.NoError(t, a.SetDriftFlag(ctx, "u1", true))
	got, err = a.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.DriftFlagged)

	require.NoError(t, a.SetDriftFlag(ctx, "u1", false))
	got, err = a.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.DriftFlagged)
}

func TestNetworkCounters(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	day1 := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)
	day1Late := time.Date(2026, 8, 22, 21, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	// 1. Same-day repeats collapse into one counter, refreshing last_seen.
	require.NoError(t, a.Upsert(ctx, "u1", "203.0.113.0/24", "2026-08-22", day1))
	require.NoError(t, a.Upsert(ctx, "u1", "203.0.113.0/24", "2026-08-22", day1Late))
	count, err := a.DistinctDays(ctx, "u1", "203.0.113.0/24", "2026-07-25")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	last, err := a.LastSeen(ctx, "u1", "203.0.113.0/24")
	require.NoError(t, err)
	assert.True(t, last.Equal(day1Late))

	// 2. Distinct days accumulate and honour the since bound.
	require.NoError(t, a.Upsert(ctx, "u1", "203.0.113.0/24", "2026-08-23", day2))
	require.NoError(t, a.Upsert(ctx, "u1", "203.0.113.0/24", "2026-08-24", day3))
	count, err = a.DistinctDays(ctx, "u1", "203.0.113.0/24", "2026-07-25")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = a.DistinctDays(ctx, "u1", "203.0.113.0/24", "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// 3. Counters are scoped per user and prefix.
	count, err = a.DistinctDays(ctx, "u2", "203.0.113.0/24", "2026-07-25")
	require.NoError(t, err)
	assert.Zero(t, count)

	// 4. Unknown prefixes report the zero time.
	last, err = a.LastSeen(ctx, "u1", "198.51.100.0/24")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestGeoEvents(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	old := domain.NewGeoEvent("u1", 40.7128, -74.0060, 20, now.Add(-48*time.Hour))
	fresh := domain.NewGeoEvent("u1", 40.7130, -74.0062, 30, now.Add(-10*time.Minute))
	require.NoError(t, a.Insert(ctx, old))
	require.NoError(t, a.Insert(ctx, fresh))

	// 1. EventsSince filters by timestamp and keeps the tile columns.
	events, err := a.EventsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, 40.713, events[0].TileLat)
	assert.Equal(t, -74.006, events[0].TileLon)
	assert.Equal(t, 30.0, events[0].Accuracy)

	// 2. DeleteEventsBefore removes only the stale rows.
	require.NoError(t, a.DeleteEventsBefore(ctx, now.Add(-24*time.Hour)))
	events, err = a.EventsSince(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestGeoTiles(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// 1. First upsert creates the tile as-is.
	require.NoError(t, a.UpsertTile(ctx, "u1", 40.713, -74.006, 2, 20, now.Add(-time.Hour)))

	// 2. A second aggregate merges with a count-weighted accuracy average
	// and keeps the newest timestamp.
	require.NoError(t, a.UpsertTile(ctx, "u1", 40.713, -74.006, 1, 50, now))

	var row GeoTileModel
	require.NoError(t, a.db.Where("user_id = ? AND tile_lat = ? AND tile_lon = ?", "u1", 40.713, -74.006).First(&row).Error)
	assert.Equal(t, int64(3), row.Count)
	assert.InDelta(t, 30.0, row.AvgAccuracy, 1e-9)
	assert.True(t, row.LastSeen.Equal(now))

	// 3. An older aggregate folds in without moving last_seen backwards.
	require.NoError(t, a.UpsertTile(ctx, "u1", 40.713, -74.006, 1, 30, now.Add(-2*time.Hour)))
	require.NoError(t, a.db.Where("user_id = ?", "u1").First(&row).Error)
	assert.Equal(t, int64(4), row.Count)
	assert.True(t, row.LastSeen.Equal(now))

	// 4. DeleteTilesBefore sweeps by last_seen.
	require.NoError(t, a.UpsertTile(ctx, "u2", 34.052, -118.244, 1, 40, now.Add(-400*24*time.Hour)))
	require.NoError(t, a.DeleteTilesBefore(ctx, now.Add(-domain.GeoTileRetention)))
	var count int64
	require.NoError(t, a.db.Model(&GeoTileModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAuditRepo(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.LogLoginAttempt(ctx, domain.LoginAttempt{
		UserID: "u1", Location: "203.0.113.7", Status: domain.AttemptSuccess, Timestamp: now.Add(-time.Minute),
	}))
	require.NoError(t, a.LogLoginAttempt(ctx, domain.LoginAttempt{
		UserID: "u1", Location: "198.51.100.9", Status: domain.AttemptBlocked, Details: "risk 82", Timestamp: now,
	}))

	// Newest first, bounded by limit.
	attempts, err := a.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, domain.AttemptBlocked, attempts[0].Status)
	assert.Equal(t, "risk 82", attempts[0].Details)
	assert.Equal(t, domain.AttemptSuccess, attempts[1].Status)

	attempts, err = a.RecentAttempts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.AttemptBlocked, attempts[0].Status)
}

func TestStepUpLog(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.Append(ctx, domain.StepUpRecord{
		User: "u1", Method: domain.StepUpMagicLink, Success: false,
		Reason: "link expired", Timestamp: now.Add(-time.Minute),
	}))
	require.NoError(t, a.Append(ctx, domain.StepUpRecord{
		User: "u1", Method: domain.StepUpBehavioral, Success: true,
		RiskScore: 12,
		Reasons:   []string{"Typing speed differs from baseline (z=2.50)"},
		Metadata:  map[string]string{"challenge": "typing"},
		Timestamp: now,
	}))

	// Newest first; reasons and metadata survive the JSON columns.
	records, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.StepUpBehavioral, records[0].Method)
	assert.True(t, records[0].Success)
	assert.Equal(t, 12, records[0].RiskScore)
	assert.Equal(t, []string{"Typing speed differs from baseline (z=2.50)"}, records[0].Reasons)
	assert.Equal(t, map[string]string{"challenge": "typing"}, records[0].Metadata)
	assert.Equal(t, domain.StepUpMagicLink, records[1].Method)
	assert.Equal(t, "link expired", records[1].Reason)
}

func TestMagicLinks(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	link := domain.MagicLink{
		ID:         "lnk-1",
		UserID:     "u1",
		Email:      "alice@example.com",
		SecretHash: "$2a$10$hash",
		ExpiresAt:  now.Add(15 * time.Minute),
		CreatedAt:  now,
	}
	require.NoError(t, a.CreateLink(ctx, link))

	// 1. Round trip; unknown ids read as nil, nil.
	got, err := a.GetLink(ctx, "lnk-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "$2a$10$hash", got.SecretHash)
	assert.False(t, got.Used)
	assert.Nil(t, got.UsedAt)

	got, err = a.GetLink(ctx, "lnk-missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 2. MarkUsed stamps the consumption time.
	usedAt := now.Add(time.Minute)
	require.NoError(t, a.MarkUsed(ctx, "lnk-1", usedAt))
	got, err = a.GetLink(ctx, "lnk-1")
	require.NoError(t, err)
	assert.True(t, got.Used)
	require.NotNil(t, got.UsedAt)
	assert.True(t, got.UsedAt.Equal(usedAt))
}

func TestTrustedDevices(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	td := domain.TrustedDevice{UserID: "u1", DeviceHash: "hash-1", IPPrefix: "203.0.113.0/24", CreatedAt: now}

	// 1. Trust is idempotent on the (user, device, prefix) tuple.
	require.NoError(t, a.Trust(ctx, td))
	require.NoError(t, a.Trust(ctx, td))
	var count int64
	require.NoError(t, a.db.Model(&TrustedDeviceModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 2. IsTrusted matches the full tuple only.
	trusted, err := a.IsTrusted(ctx, "u1", "hash-1", "203.0.113.0/24")
	require.NoError(t, err)
	assert.True(t, trusted)

	trusted, err = a.IsTrusted(ctx, "u1", "hash-1", "198.51.100.0/24")
	require.NoError(t, err)
	assert.False(t, trusted)

	trusted, err = a.IsTrusted(ctx, "u2", "hash-1", "203.0.113.0/24")
	require.NoError(t, err)
	assert.False(t, trusted)
}

func TestContextChallenges(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	// 1. Unseeded users read as nil, nil.
	got, err := a.GetChallenge(ctx, "u1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// 2. Seed stores the question and reseeding replaces it.
	require.NoError(t, a.Seed(ctx, domain.ContextChallenge{UserID: "u1", Question: "Branch code?", Answer: "PS 118"}))
	got, err = a.GetChallenge(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Branch code?", got.Question)
	assert.Equal(t, "PS 118", got.Answer)

	require.NoError(t, a.Seed(ctx, domain.ContextChallenge{UserID: "u1", Question: "Branch code?", Answer: "PS 200"}))
	got, err = a.GetChallenge(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "PS 200", got.Answer)
}

func TestTelemetryEnrichment(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	device := domain.Device{Browser: "chrome 119", OS: "windows", Screen: "1920x1080", Timezone: "America/New_York"}

	// 1. Device upserts increment seen_count on the hash.
	rec := domain.DeviceRecord{Hash: "hash-1", UserID: "u1", Device: device, FirstSeen: now, LastSeen: now, SeenCount: 1}
	require.NoError(t, a.UpsertDevice(ctx, rec))
	rec.LastSeen = now.Add(time.Hour)
	require.NoError(t, a.UpsertDevice(ctx, rec))

	var dev DeviceRecordModel
	require.NoError(t, a.db.First(&dev, "hash = ?", "hash-1").Error)
	assert.Equal(t, int64(2), dev.SeenCount)
	assert.Equal(t, "chrome 119", dev.Browser)
	assert.True(t, dev.LastSeen.Equal(now.Add(time.Hour)))
	assert.True(t, dev.FirstSeen.Equal(now))

	// 2. IP upserts behave the same on the address.
	ip := domain.IPRecord{IP: "203.0.113.7", Prefix: "203.0.113.0/24", ASN: "AS64500", City: "New York", FirstSeen: now, LastSeen: now, SeenCount: 1}
	require.NoError(t, a.UpsertIP(ctx, ip))
	ip.LastSeen = now.Add(time.Hour)
	require.NoError(t, a.UpsertIP(ctx, ip))

	var ipRow IPRecordModel
	require.NoError(t, a.db.First(&ipRow, "ip = ?", "203.0.113.7").Error)
	assert.Equal(t, int64(2), ipRow.SeenCount)
	assert.Equal(t, "AS64500", ipRow.ASN)

	// 3. Device/IP links dedupe on the pair.
	require.NoError(t, a.LinkDeviceIP(ctx, "hash-1", "203.0.113.7", now))
	require.NoError(t, a.LinkDeviceIP(ctx, "hash-1", "203.0.113.7", now.Add(time.Hour)))
	var link DeviceIPLinkModel
	require.NoError(t, a.db.First(&link, "device_hash = ? AND ip = ?", "hash-1", "203.0.113.7").Error)
	assert.Equal(t, int64(2), link.SeenCount)
}

func TestSessionSamples(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	jitter := 4200.0
	for i, score := range []int{5, 30, 50} {
		require.NoError(t, a.AppendSessionSample(ctx, domain.SessionSample{
			SessionID: "sess-1",
			UserID:    "u1",
			Telemetry: domain.SessionTelemetry{IP: "203.0.113.7", IdleJitterMS: &jitter},
			Result: domain.Assessment{
				Score:   score,
				Level:   domain.RiskLow,
				Reasons: []string{"Idle pattern differs from baseline"},
			},
			TS: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	// Newest first, bounded by limit, with the JSON payloads intact.
	samples, err := a.RecentSessionSamples(ctx, 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 50, samples[0].Result.Score)
	assert.Equal(t, 30, samples[1].Result.Score)
	assert.Equal(t, "sess-1", samples[0].SessionID)
	assert.Equal(t, "203.0.113.7", samples[0].Telemetry.IP)
	require.NotNil(t, samples[0].Telemetry.IdleJitterMS)
	assert.Equal(t, 4200.0, *samples[0].Telemetry.IdleJitterMS)
	assert.Equal(t, []string{"Idle pattern differs from baseline"}, samples[0].Result.Reasons)
}

func TestAlertFeed(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.AppendAlert(ctx, domain.Alert{
		EventType: domain.AlertFailedLogin, Details: "bad credentials", Timestamp: now.Add(-time.Minute),
	}))
	require.NoError(t, a.AppendAlert(ctx, domain.Alert{
		EventType: domain.AlertHighRiskLogin, Details: "risk 82 for u1", Timestamp: now,
	}))

	alerts, err := a.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.AlertHighRiskLogin, alerts[0].EventType)
	assert.Equal(t, "risk 82 for u1", alerts[0].Details)
	assert.Equal(t, domain.AlertFailedLogin, alerts[1].EventType)
}
