package storage

import (
	"context"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.AuditRepository = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) LogLoginAttempt(ctx context.Context, attempt domain.LoginAttempt) error {
	row := LoginAttemptModel{
		UserID:    attempt.UserID,
		Location:  attempt.Location,
		Status:    attempt.Status,
		Details:   attempt.Details,
		Timestamp: attempt.Timestamp,
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

func (a *SQLiteAdapter) RecentAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	var rows []LoginAttemptModel
	if err := a.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	attempts := make([]domain.LoginAttempt, len(rows))
	for i, r := range rows {
		attempts[i] = domain.LoginAttempt{
			ID:        r.ID,
			UserID:    r.UserID,
			Location:  r.Location,
			Status:    r.Status,
			Details:   r.Details,
			Timestamp: r.Timestamp,
		}
	}
	return attempts, nil
}
