package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scopes. Access tokens carry the session and behaviour signature;
// onboarding tokens authorise profile creation only; refresh tokens mint
// new access tokens. Magic links are not JWTs: they are store-backed
// <id>.<secret> credentials.
const (
	ScopeAccess     = "access"
	ScopeOnboarding = "onboarding"
	ScopeRefresh    = "refresh"
)

// Token lifetimes. MagicTTL bounds the store-backed magic links.
const (
	AccessTTL     = 15 * time.Minute
	OnboardingTTL = 15 * time.Minute
	RefreshTTL    = 7 * 24 * time.Hour
	MagicTTL      = 15 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope not valid for this operation")
)

// Claims is the JWT payload for all scopes. BehaviorSignature and
// SessionID are set on access tokens only.
type Claims struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email,omitempty"`
	Role              string `json:"role,omitempty"`
	Scope             string `json:"scope"`
	SessionID         string `json:"session_id,omitempty"`
	BehaviorSignature string `json:"behavior_signature,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies the service's JWTs. HS256 with a single
// shared secret.
type Service struct {
	secret []byte
}

// NewService creates a token service around the signing secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Access mints an access token bound to a session and behaviour signature.
func (s *Service) Access(userID, email, role, sessionID, behaviorSignature string) (string, error) {
	return s.sign(Claims{
		UserID:            userID,
		Email:             email,
		Role:              role,
		Scope:             ScopeAccess,
		SessionID:         sessionID,
		BehaviorSignature: behaviorSignature,
	}, AccessTTL)
}

// Onboarding mints the short-lived token that authorises profile creation
// after a verified magic link.
func (s *Service) Onboarding(userID, email string) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Scope: ScopeOnboarding}, OnboardingTTL)
}

// Refresh mints a long-lived refresh token.
func (s *Service) Refresh(userID, email string) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Scope: ScopeRefresh}, RefreshTTL)
}

func (s *Service) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and enforces the expected scope. Expired,
// malformed, or wrongly signed tokens return ErrInvalidToken; a valid token
// of another scope returns ErrWrongScope.
func (s *Service) Verify(tokenString, scope string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != scope {
		return nil, ErrWrongScope
	}
	return claims, nil
}
