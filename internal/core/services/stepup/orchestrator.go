package stepup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/audit"
	"github.com/finvault/guardian/internal/core/services/baseline"
	"github.com/finvault/guardian/internal/core/services/enrich"
	"github.com/finvault/guardian/internal/core/services/network"
	"github.com/finvault/guardian/internal/core/services/policy"
	"github.com/finvault/guardian/internal/core/services/risk"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/core/services/signature"
	"github.com/finvault/guardian/internal/core/services/token"
)

// Step-up acceptance thresholds. A behavioural ceremony passes below
// SuccessMax; its challenge trains the baselines only below LearnMax.
const (
	SuccessMax = 20
	LearnMax   = 10
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserConflict      = errors.New("user already exists")
	ErrUserNotVerified   = errors.New("user not verified")
	ErrLinkNotFound      = errors.New("magic link not found")
	ErrLinkAlreadyUsed   = errors.New("magic link already used")
	ErrLinkExpired       = errors.New("magic link expired")
	ErrMethodUnavailable = errors.New("step-up method unavailable")
)

// ConflictError carries which identifiers collided on registration.
type ConflictError struct {
	EmailTaken bool
	PhoneTaken bool
}

func (e *ConflictError) Error() string { return ErrUserConflict.Error() }

func (e *ConflictError) Unwrap() error { return ErrUserConflict }

// Orchestrator owns the authentication lifecycle: registration, magic-link
// verification, onboarding, risk-scored login, step-up ceremonies, and
// token refresh.
type Orchestrator struct {
	users    ports.UserRepository
	profiles ports.ProfileStore
	sessions ports.SessionStore
	links    ports.MagicLinkStore
	trusted  ports.TrustedDeviceStore
	contexts ports.ContextChallengeStore
	stepLog  ports.StepUpLogStore
	geoStore ports.GeoEventStore

	engine  *risk.Engine
	learner *baseline.Learner
	tracker *network.Tracker
	binder  *signature.Binder
	tokens  *token.Service
	auditor *audit.Recorder
	enrich  *enrich.Recorder
	policy  *policy.Policy

	alerts   ports.AlertSink
	mailer   ports.Mailer
	sms      ports.SMSSender
	webauthn ports.WebAuthnVerifier

	magicBaseURL string
	now          func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Users    ports.UserRepository
	Profiles ports.ProfileStore
	Sessions ports.SessionStore
	Links    ports.MagicLinkStore
	Trusted  ports.TrustedDeviceStore
	Contexts ports.ContextChallengeStore
	StepLog  ports.StepUpLogStore
	GeoStore ports.GeoEventStore

	Engine  *risk.Engine
	Learner *baseline.Learner
	Tracker *network.Tracker
	Binder  *signature.Binder
	Tokens  *token.Service
	Auditor *audit.Recorder
	Enrich  *enrich.Recorder
	Policy  *policy.Policy

	Alerts   ports.AlertSink
	Mailer   ports.Mailer
	SMS      ports.SMSSender
	WebAuthn ports.WebAuthnVerifier

	MagicBaseURL string
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		users:        d.Users,
		profiles:     d.Profiles,
		sessions:     d.Sessions,
		links:        d.Links,
		trusted:      d.Trusted,
		contexts:     d.Contexts,
		stepLog:      d.StepLog,
		geoStore:     d.GeoStore,
		engine:       d.Engine,
		learner:      d.Learner,
		tracker:      d.Tracker,
		binder:       d.Binder,
		tokens:       d.Tokens,
		auditor:      d.Auditor,
		enrich:       d.Enrich,
		policy:       d.Policy,
		alerts:       d.Alerts,
		mailer:       d.Mailer,
		sms:          d.SMS,
		webauthn:     d.WebAuthn,
		magicBaseURL: d.MagicBaseURL,
		now:          time.Now,
	}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name  string
	Email string
	Phone string
}

// Register creates an unverified user and delivers a magic link to the
// supplied contact identifier. Duplicate identifiers surface as a
// ConflictError so the API edge can report which field collided.
func (o *Orchestrator) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Email == "" && in.Phone == "" {
		return nil, fmt.Errorf("registration requires an email or phone")
	}

	existing, err := o.users.FindConflict(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("checking registration conflict: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{
			EmailTaken: in.Email != "" && strings.EqualFold(existing.Email, in.Email),
			PhoneTaken: in.Phone != "" && existing.Phone == in.Phone,
		}
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Role:      domain.RoleUser,
		CreatedAt: o.now(),
	}
	if err := o.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := o.sendMagicLink(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// VerifyRegistration consumes a registration magic link, marks the user
// verified, and returns a short-lived onboarding token.
func (o *Orchestrator) VerifyRegistration(ctx context.Context, magicToken string) (string, *domain.User, error) {
	link, err := o.consumeMagicLink(ctx, magicToken)
	if err != nil {
		return "", nil, err
	}
	user, err := o.users.GetByID(ctx, link.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return "", nil, ErrUserNotFound
	}
	if !user.Verified {
		now := o.now()
		user.Verified = true
		user.VerifiedAt = &now
		if err := o.users.Update(ctx, user); err != nil {
			return "", nil, fmt.Errorf("marking user verified: %w", err)
		}
	}
	onboarding, err := o.tokens.Onboarding(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	return onboarding, user, nil
}

// OnboardInput is the initial profile seeded after verification.
type OnboardInput struct {
	Device    *domain.Device
	Geo       *domain.Geo
	IP        string
	Challenge *domain.Challenge
	Question  string
	Answer    string
}

// Onboard creates the user's behaviour profile from the first trusted
// observation, seeds the context security question, and completes the
// onboarding flow.
func (o *Orchestrator) Onboard(ctx context.Context, userID string, in OnboardInput) error {
	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !user.Verified {
		return ErrUserNotVerified
	}

	now := o.now()
	profile := &domain.BehaviorProfile{UserID: userID, LastSeen: now}
	if in.Device != nil && !in.Device.Empty() {
		canonical := signal.CanonicalDevice(*in.Device)
		profile.DeviceFingerprint = &canonical
	}
	if in.Geo != nil && !in.Geo.Fallback {
		geo := *in.Geo
		profile.Geo = &geo
		o.recordGeo(ctx, userID, geo, now)
	}
	profile.BehaviorSignature = o.binder.Compute(profile.DeviceFingerprint, signal.Prefix(in.IP))
	if err := o.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if in.Challenge != nil {
		o.learner.Learn(ctx, userID, in.Challenge, &domain.LoginMetrics{Device: in.Device, Geo: in.Geo, IP: in.IP}, now)
	}

	if in.Question != "" && in.Answer != "" {
		err := o.contexts.Seed(ctx, domain.ContextChallenge{
			UserID:   userID,
			Question: in.Question,
			Answer:   in.Answer,
		})
		if err != nil {
			slog.Warn("seeding context challenge failed", "user_id", userID, "error", err)
		}
	}

	user.OnboardingComplete = true
	if err := o.users.Update(ctx, user); err != nil {
		return fmt.Errorf("completing onboarding: %w", err)
	}
	slog.Info("onboarding complete", "user_id", userID)
	return nil
}

// LoginInput is the signal tuple submitted with a login attempt.
type LoginInput struct {
	Identifier string
	Challenge  *domain.Challenge
	Metrics    *domain.LoginMetrics
}

// Login scores an attempt and returns the transport-neutral decision: allow
// with tokens, challenge with the available step-up methods, or block.
func (o *Orchestrator) Login(ctx context.Context, in LoginInput) (*domain.Decision, error) {
	user, err := o.users.GetByIdentifier(ctx, strings.TrimSpace(in.Identifier))
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if user == nil {
		o.auditor.Attempt(ctx, "", location(in.Metrics), domain.AttemptFailure, "unknown identifier")
		o.emit(domain.AlertFailedLogin, fmt.Sprintf("login attempt for unknown identifier %q", in.Identifier))
		return nil, ErrUserNotFound
	}

	profile, degraded := o.loadProfile(ctx, user.ID)
	var assessment domain.Assessment
	if degraded {
		assessment = degradedAssessment()
	} else {
		assessment = o.engine.ScoreLogin(in.Challenge, in.Metrics, profile)
	}

	o.enrich.Observe(ctx, user.ID, in.Metrics)

	switch assessment.Level {
	case domain.RiskHigh:
		o.auditor.Attempt(ctx, user.ID, location(in.Metrics), domain.AttemptBlocked, strings.Join(assessment.Reasons, "; "))
		o.emit(domain.AlertHighRiskLogin, fmt.Sprintf("user %s blocked at score %d", user.ID, assessment.Score))
		return &domain.Decision{
			Kind:      domain.DecisionBlock,
			Reasons:   assessment.Reasons,
			RiskScore: assessment.Score,
			Level:     assessment.Level,
		}, nil

	case domain.RiskMedium:
		o.auditor.Attempt(ctx, user.ID, location(in.Metrics), domain.AttemptChallenged, strings.Join(assessment.Reasons, "; "))
		o.emit(domain.AlertMediumRiskLogin, fmt.Sprintf("user %s challenged at score %d", user.ID, assessment.Score))
		return &domain.Decision{
			Kind:      domain.DecisionChallenge,
			Methods:   o.availableMethods(ctx, user),
			Reasons:   assessment.Reasons,
			RiskScore: assessment.Score,
			Level:     assessment.Level,
		}, nil
	}

	return o.admit(ctx, user, assessment, in.Challenge, in.Metrics)
}

// admit finalises a low-risk decision: session, tokens, learning, network
// tracking, audit, alert. Every admission learns; callers withhold the
// challenge when it must not train the baselines.
func (o *Orchestrator) admit(ctx context.Context, user *domain.User, assessment domain.Assessment, challenge *domain.Challenge, metrics *domain.LoginMetrics) (*domain.Decision, error) {
	now := o.now()

	o.learner.Learn(ctx, user.ID, challenge, metrics, now)
	if metrics != nil {
		o.tracker.RecordLogin(ctx, user.ID, metrics.IP, now)
		if metrics.Geo != nil && !metrics.Geo.Fallback {
			o.recordGeo(ctx, user.ID, *metrics.Geo, now)
		}
	}
	if err := o.tracker.Decay(ctx, user.ID, now); err != nil {
		slog.Warn("known network decay failed", "user_id", user.ID, "error", err)
	}

	var device *domain.Device
	var ip string
	if metrics != nil {
		device = metrics.Device
		ip = metrics.IP
	}
	sig := o.binder.Compute(device, signal.Prefix(ip))

	sessionID := uuid.NewString()
	err := o.sessions.Put(ctx, sessionID, domain.SessionState{
		UserID:    user.ID,
		RiskLevel: assessment.Level,
		RiskScore: assessment.Score,
		UpdatedAt: now,
	}, domain.SessionTTL)
	if err != nil {
		slog.Warn("session state write failed", "user_id", user.ID, "error", err)
	}

	access, err := o.tokens.Access(user.ID, user.Email, string(user.Role), sessionID, sig)
	if err != nil {
		return nil, err
	}
	refresh, err := o.tokens.Refresh(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	o.auditor.Attempt(ctx, user.ID, location(metrics), domain.AttemptSuccess, strings.Join(assessment.Reasons, "; "))
	o.emit(domain.AlertSuccessfulLogin, fmt.Sprintf("user %s logged in at score %d", user.ID, assessment.Score))

	return &domain.Decision{
		Kind:         domain.DecisionAllow,
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		Reasons:      assessment.Reasons,
		RiskScore:    assessment.Score,
		Level:        assessment.Level,
		User:         user,
	}, nil
}

// Refresh exchanges a refresh token for a new access token bound to a
// fresh session entry.
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (*domain.Decision, error) {
	claims, err := o.tokens.Verify(refreshToken, token.ScopeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := o.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	var sig string
	if profile, _ := o.profiles.Get(ctx, user.ID); profile != nil {
		sig = profile.BehaviorSignature
	}

	now := o.now()
	sessionID := uuid.NewString()
	err = o.sessions.Put(ctx, sessionID, domain.SessionState{
		UserID:    user.ID,
		RiskLevel: domain.RiskLow,
		UpdatedAt: now,
	}, domain.SessionTTL)
	if err != nil {
		slog.Warn("session state write failed", "user_id", user.ID, "error", err)
	}

	access, err := o.tokens.Access(user.ID, user.Email, string(user.Role), sessionID, sig)
	if err != nil {
		return nil, err
	}
	return &domain.Decision{
		Kind:        domain.DecisionAllow,
		AccessToken: access,
		SessionID:   sessionID,
		Level:       domain.RiskLow,
		User:        user,
	}, nil
}

// loadProfile fetches the profile. A store error degrades the evaluation:
// the caller must substitute degradedAssessment instead of scoring blind.
func (o *Orchestrator) loadProfile(ctx context.Context, userID string) (*domain.BehaviorProfile, bool) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		slog.Warn("profile load failed, degrading evaluation", "user_id", userID, "error", err)
		return nil, true
	}
	return profile, false
}

// degradedAssessment is the conservative outcome when a store fault
// prevents a trustworthy evaluation: forced to medium, never low.
func degradedAssessment() domain.Assessment {
	return domain.Assessment{
		Score:   50,
		Level:   domain.RiskMedium,
		Reasons: []string{"evaluation_degraded"},
	}
}

func (o *Orchestrator) recordGeo(ctx context.Context, userID string, geo domain.Geo, now time.Time) {
	if o.geoStore == nil {
		return
	}
	ev := domain.NewGeoEvent(userID, geo.Latitude, geo.Longitude, geo.Accuracy, now)
	if err := o.geoStore.Insert(ctx, ev); err != nil {
		slog.Warn("geo event insert failed", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) emit(eventType domain.AlertType, details string) {
	if o.alerts != nil {
		o.alerts.Emit(eventType, details)
	}
}

func location(metrics *domain.LoginMetrics) string {
	if metrics == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{metrics.IPCity, metrics.IPRegion, metrics.IPCountry} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return metrics.IP
	}
	return strings.Join(parts, ", ")
}
