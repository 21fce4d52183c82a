package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/policy"
)

// MockProfileStore is a mock implementation of ports.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Get(ctx context.Context, userID string) (*domain.BehaviorProfile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*domain.BehaviorProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfileStore) Save(ctx context.Context, profile *domain.BehaviorProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileStore) AddKnownNetwork(ctx context.Context, userID, prefix string) error {
	args := m.Called(ctx, userID, prefix)
	return args.Error(0)
}

func (m *MockProfileStore) RemoveKnownNetworks(ctx context.Context, userID string, prefixes []string) error {
	args := m.Called(ctx, userID, prefixes)
	return args.Error(0)
}

func (m *MockProfileStore) SetDriftFlag(ctx context.Context, userID string, flagged bool) error {
	args := m.Called(ctx, userID, flagged)
	return args.Error(0)
}

// MockCounterStore is a mock implementation of ports.NetworkCounterStore
type MockCounterStore struct {
	mock.Mock
}

func (m *MockCounterStore) Upsert(ctx context.Context, userID, prefix, day string, now time.Time) error {
	args := m.Called(ctx, userID, prefix, day, now)
	return args.Error(0)
}

func (m *MockCounterStore) DistinctDays(ctx context.Context, userID, prefix, sinceDay string) (int, error) {
	args := m.Called(ctx, userID, prefix, sinceDay)
	return args.Int(0), args.Error(1)
}

func (m *MockCounterStore) LastSeen(ctx context.Context, userID, prefix string) (time.Time, error) {
	args := m.Called(ctx, userID, prefix)
	return args.Get(0).(time.Time), args.Error(1)
}

func TestTracker_RecordLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	// 1. Below the promotion threshold: the day is counted, nothing is
	// promoted. The trailing window starts 30 days back.
	profiles := new(MockProfileStore)
	counters := new(MockCounterStore)
	counters.On("Upsert", mock.Anything, "u1", "203.0.113.0/24", "2026-08-24", now).Return(nil)
	counters.On("DistinctDays", mock.Anything, "u1", "203.0.113.0/24", "2026-07-25").Return(2, nil)
	tracker := NewTracker(profiles, counters, policy.Default())
	tracker.RecordLogin(ctx, "u1", "203.0.113.45", now)
	counters.AssertExpectations(t)
	profiles.AssertNotCalled(t, "AddKnownNetwork", mock.Anything, mock.Anything, mock.Anything)

	// 2. Third distinct day inside the window promotes the prefix.
	profiles = new(MockProfileStore)
	counters = new(MockCounterStore)
	counters.On("Upsert", mock.Anything, "u1", "203.0.113.0/24", "2026-08-24", now).Return(nil)
	counters.On("DistinctDays", mock.Anything, "u1", "203.0.113.0/24", "2026-07-25").Return(3, nil)
	profiles.On("AddKnownNetwork", mock.Anything, "u1", "203.0.113.0/24").Return(nil)
	tracker = NewTracker(profiles, counters, policy.Default())
	tracker.RecordLogin(ctx, "u1", "203.0.113.45", now)
	profiles.AssertExpectations(t)

	// 3. IPv6 counts under its /64.
	profiles = new(MockProfileStore)
	counters = new(MockCounterStore)
	counters.On("Upsert", mock.Anything, "u1", "2001:db8:1:2::/64", "2026-08-24", now).Return(nil)
	counters.On("DistinctDays", mock.Anything, "u1", "2001:db8:1:2::/64", "2026-07-25").Return(1, nil)
	tracker = NewTracker(profiles, counters, policy.Default())
	tracker.RecordLogin(ctx, "u1", "2001:db8:1:2:3:4:5:6", now)
	counters.AssertExpectations(t)

	// 4. Private, loopback and unparseable addresses never train counters.
	counters = new(MockCounterStore)
	tracker = NewTracker(new(MockProfileStore), counters, policy.Default())
	tracker.RecordLogin(ctx, "u1", "192.168.1.20", now)
	tracker.RecordLogin(ctx, "u1", "127.0.0.1", now)
	tracker.RecordLogin(ctx, "u1", "not-an-ip", now)
	counters.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// 5. Counter failures are swallowed; the login proceeds regardless.
	profiles = new(MockProfileStore)
	counters = new(MockCounterStore)
	counters.On("Upsert", mock.Anything, "u1", "203.0.113.0/24", "2026-08-24", now).Return(errors.New("db closed"))
	tracker = NewTracker(profiles, counters, policy.Default())
	tracker.RecordLogin(ctx, "u1", "203.0.113.45", now)
	counters.AssertNotCalled(t, "DistinctDays", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTracker_Decay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	// 1. A prefix seen within the decay horizon survives; one silent for
	// longer is removed, as is one with no counters at all.
	profiles := new(MockProfileStore)
	counters := new(MockCounterStore)
	profiles.On("Get", mock.Anything, "u1").Return(&domain.BehaviorProfile{
		UserID:        "u1",
		KnownNetworks: []string{"203.0.113.0/24", "198.51.100.0/24", "192.0.2.0/24"},
	}, nil)
	counters.On("LastSeen", mock.Anything, "u1", "203.0.113.0/24").Return(now.AddDate(0, 0, -10), nil)
	counters.On("LastSeen", mock.Anything, "u1", "198.51.100.0/24").Return(now.AddDate(0, 0, -91), nil)
	counters.On("LastSeen", mock.Anything, "u1", "192.0.2.0/24").Return(time.Time{}, nil)
	profiles.On("RemoveKnownNetworks", mock.Anything, "u1", []string{"198.51.100.0/24", "192.0.2.0/24"}).Return(nil)

	tracker := NewTracker(profiles, counters, policy.Default())
	assert.NoError(t, tracker.Decay(ctx, "u1", now))
	profiles.AssertExpectations(t)

	// 2. The horizon is strict: a prefix last seen exactly 90 days ago is
	// kept, so nothing is written.
	profiles = new(MockProfileStore)
	counters = new(MockCounterStore)
	profiles.On("Get", mock.Anything, "u1").Return(&domain.BehaviorProfile{
		UserID:        "u1",
		KnownNetworks: []string{"203.0.113.0/24"},
	}, nil)
	counters.On("LastSeen", mock.Anything, "u1", "203.0.113.0/24").Return(now.AddDate(0, 0, -90), nil)
	tracker = NewTracker(profiles, counters, policy.Default())
	assert.NoError(t, tracker.Decay(ctx, "u1", now))
	profiles.AssertNotCalled(t, "RemoveKnownNetworks", mock.Anything, mock.Anything, mock.Anything)

	// 3. No profile or no promoted networks is a no-op.
	profiles = new(MockProfileStore)
	profiles.On("Get", mock.Anything, "u1").Return(nil, nil)
	tracker = NewTracker(profiles, new(MockCounterStore), policy.Default())
	assert.NoError(t, tracker.Decay(ctx, "u1", now))

	// 4. Read failures propagate to the sweeper.
	profiles = new(MockProfileStore)
	profiles.On("Get", mock.Anything, "u1").Return(nil, errors.New("db closed"))
	tracker = NewTracker(profiles, new(MockCounterStore), policy.Default())
	assert.Error(t, tracker.Decay(ctx, "u1", now))
}
