package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var (
	_ ports.StepUpLogStore        = (*SQLiteAdapter)(nil)
	_ ports.MagicLinkStore        = (*SQLiteAdapter)(nil)
	_ ports.TrustedDeviceStore    = (*SQLiteAdapter)(nil)
	_ ports.ContextChallengeStore = (*SQLiteAdapter)(nil)
)

func (a *SQLiteAdapter) Append(ctx context.Context, rec domain.StepUpRecord) error {
	row := stepUpToModel(rec)
	return a.db.WithContext(ctx).Create(&row).Error
}

func (a *SQLiteAdapter) Recent(ctx context.Context, limit int) ([]domain.StepUpRecord, error) {
	var rows []StepUpRecordModel
	if err := a.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]domain.StepUpRecord, len(rows))
	for i, r := range rows {
		records[i] = stepUpToDomain(r)
	}
	return records, nil
}

func (a *SQLiteAdapter) CreateLink(ctx context.Context, link domain.MagicLink) error {
	row := MagicLinkModel{
		ID:         link.ID,
		UserID:     link.UserID,
		Email:      link.Email,
		SecretHash: link.SecretHash,
		ExpiresAt:  link.ExpiresAt,
		Used:       link.Used,
		UsedAt:     link.UsedAt,
		CreatedAt:  link.CreatedAt,
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

func (a *SQLiteAdapter) GetLink(ctx context.Context, id string) (*domain.MagicLink, error) {
	var row MagicLinkModel
	if err := a.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.MagicLink{
		ID:         row.ID,
		UserID:     row.UserID,
		Email:      row.Email,
		SecretHash: row.SecretHash,
		ExpiresAt:  row.ExpiresAt,
		Used:       row.Used,
		UsedAt:     row.UsedAt,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (a *SQLiteAdapter) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return a.db.WithContext(ctx).Model(&MagicLinkModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"used": true, "used_at": at}).Error
}

func (a *SQLiteAdapter) IsTrusted(ctx context.Context, userID, deviceHash, ipPrefix string) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&TrustedDeviceModel{}).
		Where("user_id = ? AND device_hash = ? AND ip_prefix = ?", userID, deviceHash, ipPrefix).
		Count(&count).Error
	return count > 0, err
}

func (a *SQLiteAdapter) Trust(ctx context.Context, td domain.TrustedDevice) error {
	row := TrustedDeviceModel{
		UserID:     td.UserID,
		DeviceHash: td.DeviceHash,
		IPPrefix:   td.IPPrefix,
		CreatedAt:  td.CreatedAt,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_hash"}, {Name: "ip_prefix"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (a *SQLiteAdapter) GetChallenge(ctx context.Context, userID string) (*domain.ContextChallenge, error) {
	var row ContextChallengeModel
	if err := a.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.ContextChallenge{
		UserID:   row.UserID,
		Question: row.Question,
		Answer:   row.Answer,
	}, nil
}

func (a *SQLiteAdapter) Seed(ctx context.Context, ch domain.ContextChallenge) error {
	row := ContextChallengeModel{
		UserID:   ch.UserID,
		Question: ch.Question,
		Answer:   ch.Answer,
	}
	return a.db.WithContext(ctx).Save(&row).Error
}
