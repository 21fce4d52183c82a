package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/guardian/internal/core/domain"
)

func TestService_AccessRoundTrip(t *testing.T) {
	svc := NewService("test-secret")

	signed, err := svc.Access("u1", "alice@example.com", string(domain.RoleUser), "sess-1", "sig-abc")
	require.NoError(t, err)

	claims, err := svc.Verify(signed, ScopeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, string(domain.RoleUser), claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "sig-abc", claims.BehaviorSignature)
	assert.Equal(t, "u1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestService_ScopeEnforcement(t *testing.T) {
	svc := NewService("test-secret")

	// 1. An onboarding token is rejected on the access surface.
	onboarding, err := svc.Onboarding("u1", "alice@example.com")
	require.NoError(t, err)
	_, err = svc.Verify(onboarding, ScopeAccess)
	assert.ErrorIs(t, err, ErrWrongScope)

	// 2. An access token cannot be exchanged as a refresh token.
	access, err := svc.Access("u1", "", "", "sess-1", "")
	require.NoError(t, err)
	_, err = svc.Verify(access, ScopeRefresh)
	assert.ErrorIs(t, err, ErrWrongScope)

	// 3. Refresh tokens verify under their own scope and carry the email.
	refresh, err := svc.Refresh("u1", "alice@example.com")
	require.NoError(t, err)
	claims, err := svc.Verify(refresh, ScopeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Empty(t, claims.SessionID)
}

func TestService_InvalidTokens(t *testing.T) {
	svc := NewService("test-secret")

	// 1. Garbage input.
	_, err := svc.Verify("not.a.jwt", ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 2. Token signed with a different secret.
	other := NewService("other-secret")
	signed, err := other.Access("u1", "", "", "sess-1", "")
	assert.NoError(t, err)
	_, err = svc.Verify(signed, ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 3. Tampered payload.
	signed, err = svc.Access("u1", "", "", "sess-1", "")
	assert.NoError(t, err)
	_, err = svc.Verify(signed[:len(signed)-2], ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
