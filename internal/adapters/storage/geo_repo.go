package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.GeoEventStore = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) Insert(ctx context.Context, ev domain.GeoEvent) error {
	row := GeoEventModel{
		UserID:   ev.UserID,
		Lat:      ev.Lat,
		Lon:      ev.Lon,
		TileLat:  ev.TileLat,
		TileLon:  ev.TileLon,
		Accuracy: ev.Accuracy,
		TS:       ev.TS,
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

func (a *SQLiteAdapter) EventsSince(ctx context.Context, since time.Time) ([]domain.GeoEvent, error) {
	var rows []GeoEventModel
	if err := a.db.WithContext(ctx).Where("ts >= ?", since).Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]domain.GeoEvent, len(rows))
	for i, r := range rows {
		events[i] = domain.GeoEvent{
			UserID:   r.UserID,
			Lat:      r.Lat,
			Lon:      r.Lon,
			TileLat:  r.TileLat,
			TileLon:  r.TileLon,
			Accuracy: r.Accuracy,
			TS:       r.TS,
		}
	}
	return events, nil
}

func (a *SQLiteAdapter) DeleteEventsBefore(ctx context.Context, cutoff time.Time) error {
	return a.db.WithContext(ctx).Where("ts < ?", cutoff).Delete(&GeoEventModel{}).Error
}

// UpsertTile merges a fresh aggregate into the stored tile, count-weighting
// the accuracy average.
func (a *SQLiteAdapter) UpsertTile(ctx context.Context, userID string, tileLat, tileLon float64, count int64, avgAccuracy float64, lastSeen time.Time) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row GeoTileModel
		err := tx.Where("user_id = ? AND tile_lat = ? AND tile_lon = ?", userID, tileLat, tileLon).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = GeoTileModel{
				UserID:      userID,
				TileLat:     tileLat,
				TileLon:     tileLon,
				Count:       count,
				AvgAccuracy: avgAccuracy,
				LastSeen:    lastSeen,
			}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		total := row.Count + count
		row.AvgAccuracy = (row.AvgAccuracy*float64(row.Count) + avgAccuracy*float64(count)) / float64(total)
		row.Count = total
		if lastSeen.After(row.LastSeen) {
			row.LastSeen = lastSeen
		}
		return tx.Save(&row).Error
	})
}

func (a *SQLiteAdapter) DeleteTilesBefore(ctx context.Context, cutoff time.Time) error {
	return a.db.WithContext(ctx).Where("last_seen < ?", cutoff).Delete(&GeoTileModel{}).Error
}
