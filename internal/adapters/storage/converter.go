package storage

import (
	"encoding/json"
	"fmt"

	"github.com/finvault/guardian/internal/core/domain"
)

func userToModel(u *domain.User) UserModel {
	return UserModel{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Phone:              u.Phone,
		Role:               string(u.Role),
		Verified:           u.Verified,
		VerifiedAt:         u.VerifiedAt,
		OnboardingComplete: u.OnboardingComplete,
		CreatedAt:          u.CreatedAt,
	}
}

func userToDomain(m UserModel) *domain.User {
	return &domain.User{
		ID:                 m.ID,
		Name:               m.Name,
		Email:              m.Email,
		Phone:              m.Phone,
		Role:               domain.Role(m.Role),
		Verified:           m.Verified,
		VerifiedAt:         m.VerifiedAt,
		OnboardingComplete: m.OnboardingComplete,
		CreatedAt:          m.CreatedAt,
	}
}

func profileToModel(p *domain.BehaviorProfile) (ProfileModel, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return ProfileModel{}, fmt.Errorf("encoding profile: %w", err)
	}
	return ProfileModel{
		UserID:       p.UserID,
		Document:     string(doc),
		DriftFlagged: p.DriftFlagged,
	}, nil
}

func profileToDomain(m ProfileModel) (*domain.BehaviorProfile, error) {
	var p domain.BehaviorProfile
	if err := json.Unmarshal([]byte(m.Document), &p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	p.UserID = m.UserID
	p.DriftFlagged = m.DriftFlagged
	return &p, nil
}

func stepUpToModel(r domain.StepUpRecord) StepUpRecordModel {
	reasons, _ := json.Marshal(r.Reasons)
	meta, _ := json.Marshal(r.Metadata)
	return StepUpRecordModel{
		User:      r.User,
		Method:    string(r.Method),
		Success:   r.Success,
		Reason:    r.Reason,
		RiskScore: r.RiskScore,
		Reasons:   string(reasons),
		Metadata:  string(meta),
		Timestamp: r.Timestamp,
	}
}

func stepUpToDomain(m StepUpRecordModel) domain.StepUpRecord {
	r := domain.StepUpRecord{
		User:      m.User,
		Method:    domain.StepUpMethod(m.Method),
		Success:   m.Success,
		Reason:    m.Reason,
		RiskScore: m.RiskScore,
		Timestamp: m.Timestamp,
	}
	_ = json.Unmarshal([]byte(m.Reasons), &r.Reasons)
	_ = json.Unmarshal([]byte(m.Metadata), &r.Metadata)
	return r
}

func sampleToModel(s domain.SessionSample) (SessionSampleModel, error) {
	telemetry, err := json.Marshal(s.Telemetry)
	if err != nil {
		return SessionSampleModel{}, fmt.Errorf("encoding telemetry: %w", err)
	}
	result, err := json.Marshal(s.Result)
	if err != nil {
		return SessionSampleModel{}, fmt.Errorf("encoding result: %w", err)
	}
	return SessionSampleModel{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		Telemetry: string(telemetry),
		Result:    string(result),
		Score:     s.Result.Score,
		TS:        s.TS,
	}, nil
}

func sampleToDomain(m SessionSampleModel) domain.SessionSample {
	s := domain.SessionSample{
		SessionID: m.SessionID,
		UserID:    m.UserID,
		TS:        m.TS,
	}
	_ = json.Unmarshal([]byte(m.Telemetry), &s.Telemetry)
	_ = json.Unmarshal([]byte(m.Result), &s.Result)
	return s
}
