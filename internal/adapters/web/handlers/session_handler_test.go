package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mw "github.com/finvault/guardian/internal/adapters/web/middleware"
	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/guardian"
	"github.com/finvault/guardian/internal/core/services/policy"
	"github.com/finvault/guardian/internal/core/services/risk"
	"github.com/finvault/guardian/internal/core/services/signature"
	"github.com/finvault/guardian/internal/core/services/token"
	"github.com/finvault/guardian/internal/telemetry"
)

// MockSessionStore is a mock implementation of ports.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Put(ctx context.Context, sessionID string, state domain.SessionState, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, state, ttl)
	return args.Error(0)
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	args := m.Called(ctx, sessionID)
	if s := args.Get(0); s != nil {
		return s.(*domain.SessionState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

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

// MockTelemetryStore is a mock implementation of ports.TelemetryStore
type MockTelemetryStore struct {
	mock.Mock
}

func (m *MockTelemetryStore) UpsertDevice(ctx context.Context, rec domain.DeviceRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockTelemetryStore) UpsertIP(ctx context.Context, rec domain.IPRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockTelemetryStore) LinkDeviceIP(ctx context.Context, deviceHash, ip string, now time.Time) error {
	args := m.Called(ctx, deviceHash, ip, now)
	return args.Error(0)
}

func (m *MockTelemetryStore) AppendSessionSample(ctx context.Context, sample domain.SessionSample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockTelemetryStore) RecentSessionSamples(ctx context.Context, limit int) ([]domain.SessionSample, error) {
	args := m.Called(ctx, limit)
	if s := args.Get(0); s != nil {
		return s.([]domain.SessionSample), args.Error(1)
	}
	return nil, args.Error(1)
}

func withClaims(r *http.Request, claims *token.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), mw.ClaimsContextKey, claims))
}

func newSessionHandler(sessions *MockSessionStore, profiles *MockProfileStore, store *MockTelemetryStore) *SessionHandler {
	g := guardian.NewGuardian(sessions, profiles, store, risk.NewEngine(policy.Default()), signature.NewBinder(), nil)
	return NewSessionHandler(g)
}

func TestHandleStatus(t *testing.T) {
	sessions := new(MockSessionStore)
	sessions.On("Get", mock.Anything, "sess-1").Return(&domain.SessionState{
		UserID: "u1", RiskLevel: domain.RiskMedium, RiskScore: 45, Reason: "Behavioural challenge missing",
	}, nil)
	sessions.On("Get", mock.Anything, "sess-gone").Return(nil, nil)
	h := newSessionHandler(sessions, new(MockProfileStore), new(MockTelemetryStore))

	// 1. Tracked session.
	req := httptest.NewRequest(http.MethodGet, "/api/session/status", nil)
	req.Header.Set(mw.SessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["tracked"])
	assert.Equal(t, "medium", body["risk_level"])
	assert.Equal(t, float64(45), body["risk_score"])

	// 2. Untracked sessions read as low risk.
	req = httptest.NewRequest(http.MethodGet, "/api/session/status", nil)
	req.Header.Set(mw.SessionIDHeader, "sess-gone")
	rec = httptest.NewRecorder()
	h.HandleStatus(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["tracked"])
	assert.Equal(t, "low", body["risk_level"])

	// 3. No session id anywhere.
	rec = httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/session/status", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTelemetry(t *testing.T) {
	telemetry.InitMetrics()
	binder := signature.NewBinder()
	device := domain.Device{Browser: "Chrome 119", OS: "windows", Screen: "1920x1080", Timezone: "America/New_York"}
	boundSig := binder.Compute(&device, "203.0.113.0/24")
	profile := &domain.BehaviorProfile{
		UserID:            "u1",
		DeviceFingerprint: &device,
		Geo:               &domain.Geo{Latitude: 40.7128, Longitude: -74.006, Accuracy: 20},
		IPGeo:             &domain.IPGeo{City: "New York", Region: "NY", Country: "US"},
		KnownNetworks:     []string{"203.0.113.0/24"},
		BehaviorSignature: boundSig,
	}

	sessions := new(MockSessionStore)
	sessions.On("Put", mock.Anything, "sess-1", mock.Anything, domain.SessionTTL).Return(nil)
	profiles := new(MockProfileStore)
	profiles.On("Get", mock.Anything, "u1").Return(profile, nil)
	store := new(MockTelemetryStore)
	store.On("AppendSessionSample", mock.Anything, mock.Anything).Return(nil)
	h := newSessionHandler(sessions, profiles, store)

	payload, err := json.Marshal(domain.SessionTelemetry{
		Device: &device,
		Geo:    &domain.Geo{Latitude: 40.7128, Longitude: -74.006, Accuracy: 20},
		IP:     "203.0.113.10",
	})
	require.NoError(t, err)

	// 1. A clean sample scores low and echoes the session header.
	req := httptest.NewRequest(http.MethodPost, "/api/session/telemetry", strings.NewReader(string(payload)))
	req.Header.Set(mw.SessionIDHeader, "sess-1")
	req = withClaims(req, &token.Claims{UserID: "u1", SessionID: "sess-1", BehaviorSignature: boundSig})
	rec := httptest.NewRecorder()
	h.HandleTelemetry(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-1", rec.Header().Get(mw.SessionIDHeader))
	var a domain.Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, domain.RiskLow, a.Level)
	sessions.AssertExpectations(t)

	// 2. Claims are mandatory.
	req = httptest.NewRequest(http.MethodPost, "/api/session/telemetry", strings.NewReader(string(payload)))
	req.Header.Set(mw.SessionIDHeader, "sess-1")
	rec = httptest.NewRecorder()
	h.HandleTelemetry(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 3. Session id from the token claims suffices when the header is
	// absent.
	req = httptest.NewRequest(http.MethodPost, "/api/session/telemetry", strings.NewReader(string(payload)))
	req = withClaims(req, &token.Claims{UserID: "u1", SessionID: "sess-1", BehaviorSignature: boundSig})
	rec = httptest.NewRecorder()
	h.HandleTelemetry(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 4. Malformed bodies are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/session/telemetry", strings.NewReader("{"))
	req.Header.Set(mw.SessionIDHeader, "sess-1")
	req = withClaims(req, &token.Claims{UserID: "u1", SessionID: "sess-1"})
	rec = httptest.NewRecorder()
	h.HandleTelemetry(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogout(t *testing.T) {
	sessions := new(MockSessionStore)
	sessions.On("Delete", mock.Anything, "sess-1").Return(nil)
	h := newSessionHandler(sessions, new(MockProfileStore), new(MockTelemetryStore))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set(mw.SessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	sessions.AssertExpectations(t)

	// Logging out without a session is still a success.
	rec = httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
