package storage

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.NetworkCounterStore = (*SQLiteAdapter)(nil)

// Upsert counts the (user, prefix, day) tuple once, refreshing last_seen
// on repeat logins within the same day.
func (a *SQLiteAdapter) Upsert(ctx context.Context, userID, prefix, day string, now time.Time) error {
	row := NetworkDayModel{
		UserID:    userID,
		Prefix:    prefix,
		Day:       day,
		FirstSeen: now,
		LastSeen:  now,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "prefix"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seen": now}),
	}).Create(&row).Error
}

func (a *SQLiteAdapter) DistinctDays(ctx context.Context, userID, prefix, sinceDay string) (int, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&NetworkDayModel{}).
		Where("user_id = ? AND prefix = ? AND day >= ?", userID, prefix, sinceDay).
		Count(&count).Error
	return int(count), err
}

// LastSeen returns the newest counter timestamp for the prefix, or the
// zero time when no counter exists.
func (a *SQLiteAdapter) LastSeen(ctx context.Context, userID, prefix string) (time.Time, error) {
	var row NetworkDayModel
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND prefix = ?", userID, prefix).
		Order("last_seen desc").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return time.Time{}, err
	}
	return row.LastSeen, nil
}
