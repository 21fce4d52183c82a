package storage

import (
	"context"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.AlertStore = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) AppendAlert(ctx context.Context, alert domain.Alert) error {
	row := AlertModel{
		EventType: string(alert.EventType),
		Details:   alert.Details,
		Timestamp: alert.Timestamp,
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

func (a *SQLiteAdapter) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	var rows []AlertModel
	if err := a.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, len(rows))
	for i, r := range rows {
		alerts[i] = domain.Alert{
			EventType: domain.AlertType(r.EventType),
			Details:   r.Details,
			Timestamp: r.Timestamp,
		}
	}
	return alerts, nil
}
