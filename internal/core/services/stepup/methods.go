package stepup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/core/services/token"
)

// StepUpInput carries the payload of one step-up ceremony. Which fields are
// consulted depends on Method.
type StepUpInput struct {
	Identifier string
	Method     domain.StepUpMethod
	Challenge  *domain.Challenge
	Metrics    *domain.LoginMetrics
	Answer     string
	Credential map[string]any
	MagicToken string
	Telemetry  *domain.SessionTelemetry
}

// StepUp runs one supplementary verification ceremony for a challenged
// login. On success the user is admitted with fresh tokens; on failure the
// attempt is logged and an alert is emitted.
func (o *Orchestrator) StepUp(ctx context.Context, in StepUpInput) (*domain.Decision, error) {
	user, err := o.users.GetByIdentifier(ctx, strings.TrimSpace(in.Identifier))
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	switch in.Method {
	case domain.StepUpBehavioral:
		return o.stepUpBehavioral(ctx, user, in)
	case domain.StepUpTrustedDevice:
		return o.stepUpTrustedDevice(ctx, user, in)
	case domain.StepUpMagicLink:
		return o.stepUpMagicLink(ctx, user, in)
	case domain.StepUpWebAuthn:
		return o.stepUpWebAuthn(ctx, user, in)
	case domain.StepUpContext:
		return o.stepUpContext(ctx, user, in)
	case domain.StepUpAmbient:
		return o.stepUpAmbient(ctx, user, in)
	default:
		return nil, ErrMethodUnavailable
	}
}

// stepUpBehavioral re-scores a fresh challenge against the profile. It
// passes below SuccessMax; the challenge trains the baselines only when
// the residual is within LearnMax.
func (o *Orchestrator) stepUpBehavioral(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	profile, degraded := o.loadProfile(ctx, user.ID)
	var assessment domain.Assessment
	if degraded {
		assessment = degradedAssessment()
	} else {
		assessment = o.engine.ScoreLogin(in.Challenge, in.Metrics, profile)
	}
	if assessment.Score > SuccessMax {
		return o.stepUpFailed(ctx, user, domain.StepUpBehavioral, assessment,
			fmt.Sprintf("behavioural residual %d above acceptance", assessment.Score))
	}
	o.logStepUp(ctx, user, domain.StepUpBehavioral, true, "", assessment)
	o.trustPair(ctx, user.ID, in.Metrics)
	learnChallenge := in.Challenge
	if assessment.Score > LearnMax {
		learnChallenge = nil
	}
	return o.admit(ctx, user, assessment, learnChallenge, in.Metrics)
}

func (o *Orchestrator) stepUpTrustedDevice(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	hash, prefix := pairIdentity(o, in.Metrics)
	if hash == "" || prefix == "" {
		return o.stepUpFailed(ctx, user, domain.StepUpTrustedDevice, domain.Assessment{}, "device or network identity missing")
	}
	trusted, err := o.trusted.IsTrusted(ctx, user.ID, hash, prefix)
	if err != nil {
		return nil, fmt.Errorf("checking trusted device: %w", err)
	}
	if !trusted {
		return o.stepUpFailed(ctx, user, domain.StepUpTrustedDevice, domain.Assessment{}, "device/network pair not trusted")
	}
	assessment := verifiedAssessment("trusted device confirmed")
	o.logStepUp(ctx, user, domain.StepUpTrustedDevice, true, "", assessment)
	return o.admit(ctx, user, assessment, nil, in.Metrics)
}

// stepUpMagicLink is two-phase: without a token it delivers a fresh link;
// with one it consumes the link and admits the user.
func (o *Orchestrator) stepUpMagicLink(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	if in.MagicToken == "" {
		if err := o.sendMagicLink(ctx, user); err != nil {
			return nil, err
		}
		return &domain.Decision{
			Kind:    domain.DecisionChallenge,
			Methods: []domain.StepUpMethod{domain.StepUpMagicLink},
			Reasons: []string{"magic link sent"},
			Level:   domain.RiskMedium,
		}, nil
	}

	link, err := o.consumeMagicLink(ctx, in.MagicToken)
	if err != nil {
		o.logStepUp(ctx, user, domain.StepUpMagicLink, false, err.Error(), domain.Assessment{})
		o.emit(domain.AlertFailedAdditionalVerify, fmt.Sprintf("user %s magic link rejected: %v", user.ID, err))
		return nil, err
	}
	if link.UserID != user.ID {
		return nil, ErrLinkNotFound
	}
	assessment := verifiedAssessment("magic link verified")
	o.logStepUp(ctx, user, domain.StepUpMagicLink, true, "", assessment)
	o.trustPair(ctx, user.ID, in.Metrics)
	return o.admit(ctx, user, assessment, nil, in.Metrics)
}

func (o *Orchestrator) stepUpWebAuthn(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	if o.webauthn == nil {
		return nil, ErrMethodUnavailable
	}
	if err := o.webauthn.VerifyAssertion(ctx, user.ID, in.Credential); err != nil {
		return o.stepUpFailed(ctx, user, domain.StepUpWebAuthn, domain.Assessment{}, err.Error())
	}
	assessment := verifiedAssessment("webauthn assertion verified")
	o.logStepUp(ctx, user, domain.StepUpWebAuthn, true, "", assessment)
	o.trustPair(ctx, user.ID, in.Metrics)
	return o.admit(ctx, user, assessment, nil, in.Metrics)
}

func (o *Orchestrator) stepUpContext(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	ch, err := o.contexts.GetChallenge(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading context challenge: %w", err)
	}
	if ch == nil {
		return nil, ErrMethodUnavailable
	}
	if !strings.EqualFold(strings.TrimSpace(in.Answer), strings.TrimSpace(ch.Answer)) {
		return o.stepUpFailed(ctx, user, domain.StepUpContext, domain.Assessment{}, "context answer mismatch")
	}
	assessment := verifiedAssessment("context question answered")
	o.logStepUp(ctx, user, domain.StepUpContext, true, "", assessment)
	return o.admit(ctx, user, assessment, nil, in.Metrics)
}

// stepUpAmbient scores passive telemetry only; useful when a client cannot
// present an interactive challenge.
func (o *Orchestrator) stepUpAmbient(ctx context.Context, user *domain.User, in StepUpInput) (*domain.Decision, error) {
	if in.Telemetry == nil {
		return o.stepUpFailed(ctx, user, domain.StepUpAmbient, domain.Assessment{}, "no telemetry supplied")
	}
	profile, degraded := o.loadProfile(ctx, user.ID)
	var assessment domain.Assessment
	if degraded {
		assessment = degradedAssessment()
	} else {
		assessment = o.engine.ScoreSession(*in.Telemetry, profile)
	}
	if assessment.Score > SuccessMax {
		return o.stepUpFailed(ctx, user, domain.StepUpAmbient, assessment,
			fmt.Sprintf("ambient residual %d above acceptance", assessment.Score))
	}
	o.logStepUp(ctx, user, domain.StepUpAmbient, true, "", assessment)
	return o.admit(ctx, user, assessment, nil, in.Metrics)
}

func (o *Orchestrator) stepUpFailed(ctx context.Context, user *domain.User, method domain.StepUpMethod, assessment domain.Assessment, reason string) (*domain.Decision, error) {
	o.logStepUp(ctx, user, method, false, reason, assessment)
	o.emit(domain.AlertFailedAdditionalVerify, fmt.Sprintf("user %s failed %s step-up: %s", user.ID, method, reason))
	o.auditor.Attempt(ctx, user.ID, "", domain.AttemptFailure, fmt.Sprintf("%s step-up: %s", method, reason))
	return &domain.Decision{
		Kind:      domain.DecisionChallenge,
		Methods:   o.availableMethods(ctx, user),
		Reasons:   append(assessment.Reasons, reason),
		RiskScore: assessment.Score,
		Level:     domain.RiskMedium,
	}, nil
}

func (o *Orchestrator) logStepUp(ctx context.Context, user *domain.User, method domain.StepUpMethod, success bool, reason string, assessment domain.Assessment) {
	err := o.stepLog.Append(ctx, domain.StepUpRecord{
		User:      user.ID,
		Method:    method,
		Success:   success,
		Reason:    reason,
		RiskScore: assessment.Score,
		Reasons:   assessment.Reasons,
		Timestamp: o.now(),
	})
	if err != nil {
		slog.Warn("step-up log append failed", "user_id", user.ID, "method", method, "error", err)
	}
}

// trustPair records the device/network pair after a strong ceremony so a
// later challenge can be satisfied by trusted_device alone.
func (o *Orchestrator) trustPair(ctx context.Context, userID string, metrics *domain.LoginMetrics) {
	hash, prefix := pairIdentity(o, metrics)
	if hash == "" || prefix == "" {
		return
	}
	err := o.trusted.Trust(ctx, domain.TrustedDevice{
		UserID:     userID,
		DeviceHash: hash,
		IPPrefix:   prefix,
		CreatedAt:  o.now(),
	})
	if err != nil {
		slog.Warn("trusting device pair failed", "user_id", userID, "error", err)
	}
}

func pairIdentity(o *Orchestrator, metrics *domain.LoginMetrics) (hash, prefix string) {
	if metrics == nil || metrics.Device == nil || metrics.Device.Empty() {
		return "", ""
	}
	canonical := signal.CanonicalDevice(*metrics.Device)
	return o.binder.Compute(&canonical, ""), signal.Prefix(metrics.IP)
}

func (o *Orchestrator) availableMethods(ctx context.Context, user *domain.User) []domain.StepUpMethod {
	methods := []domain.StepUpMethod{domain.StepUpBehavioral, domain.StepUpTrustedDevice}
	if user.Email != "" || user.Phone != "" {
		methods = append(methods, domain.StepUpMagicLink)
	}
	if o.webauthn != nil {
		methods = append(methods, domain.StepUpWebAuthn)
	}
	if ch, err := o.contexts.GetChallenge(ctx, user.ID); err == nil && ch != nil {
		methods = append(methods, domain.StepUpContext)
	}
	return append(methods, domain.StepUpAmbient)
}

func verifiedAssessment(reason string) domain.Assessment {
	return domain.Assessment{Level: domain.RiskLow, Reasons: []string{reason}}
}

// sendMagicLink mints a one-shot token, stores only the bcrypt hash of its
// secret, and delivers the URL by email or SMS.
func (o *Orchestrator) sendMagicLink(ctx context.Context, user *domain.User) error {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating magic link secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing magic link secret: %w", err)
	}

	now := o.now()
	link := domain.MagicLink{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Email:      user.Email,
		SecretHash: string(hash),
		ExpiresAt:  now.Add(token.MagicTTL),
		CreatedAt:  now,
	}
	if err := o.links.CreateLink(ctx, link); err != nil {
		return fmt.Errorf("storing magic link: %w", err)
	}

	url := fmt.Sprintf("%s?token=%s.%s", o.magicBaseURL, link.ID, secret)
	switch {
	case user.Email != "" && o.mailer != nil:
		if err := o.mailer.SendMagicLink(ctx, user.Email, url); err != nil {
			return fmt.Errorf("sending magic link email: %w", err)
		}
	case user.Phone != "" && o.sms != nil:
		if err := o.sms.SendMagicLink(ctx, user.Phone, url); err != nil {
			return fmt.Errorf("sending magic link sms: %w", err)
		}
	default:
		return fmt.Errorf("no delivery channel for magic link")
	}
	slog.Info("magic link sent", "user_id", user.ID, "link_id", link.ID)
	return nil
}

// consumeMagicLink validates and burns a <id>.<secret> token. A wrong
// secret is indistinguishable from a missing link.
func (o *Orchestrator) consumeMagicLink(ctx context.Context, magicToken string) (*domain.MagicLink, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(magicToken), ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrLinkNotFound
	}
	link, err := o.links.GetLink(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading magic link: %w", err)
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	if link.Used {
		return nil, ErrLinkAlreadyUsed
	}
	if o.now().After(link.ExpiresAt) {
		return nil, ErrLinkExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(secret)) != nil {
		return nil, ErrLinkNotFound
	}
	if err := o.links.MarkUsed(ctx, link.ID, o.now()); err != nil {
		return nil, fmt.Errorf("marking magic link used: %w", err)
	}
	return link, nil
}
