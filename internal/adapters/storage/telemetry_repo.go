package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.TelemetryStore = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) UpsertDevice(ctx context.Context, rec domain.DeviceRecord) error {
	row := DeviceRecordModel{
		Hash:      rec.Hash,
		UserID:    rec.UserID,
		Browser:   rec.Device.Browser,
		OS:        rec.Device.OS,
		Screen:    rec.Device.Screen,
		Timezone:  rec.Device.Timezone,
		FirstSeen: rec.FirstSeen,
		LastSeen:  rec.LastSeen,
		SeenCount: rec.SeenCount,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hash"}},
		DoUpdates: clause.Assignments(map[string]any{
			"user_id":    rec.UserID,
			"last_seen":  rec.LastSeen,
			"seen_count": gorm.Expr("seen_count + 1"),
		}),
	}).Create(&row).Error
}

func (a *SQLiteAdapter) UpsertIP(ctx context.Context, rec domain.IPRecord) error {
	row := IPRecordModel{
		IP:        rec.IP,
		Prefix:    rec.Prefix,
		Private:   rec.Private,
		ASN:       rec.ASN,
		ASNOrg:    rec.ASNOrg,
		City:      rec.City,
		Region:    rec.Region,
		Country:   rec.Country,
		FirstSeen: rec.FirstSeen,
		LastSeen:  rec.LastSeen,
		SeenCount: rec.SeenCount,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen":  rec.LastSeen,
			"seen_count": gorm.Expr("seen_count + 1"),
		}),
	}).Create(&row).Error
}

func (a *SQLiteAdapter) LinkDeviceIP(ctx context.Context, deviceHash, ip string, now time.Time) error {
	row := DeviceIPLinkModel{
		DeviceHash: deviceHash,
		IP:         ip,
		FirstSeen:  now,
		LastSeen:   now,
		SeenCount:  1,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_hash"}, {Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen":  now,
			"seen_count": gorm.Expr("seen_count + 1"),
		}),
	}).Create(&row).Error
}

func (a *SQLiteAdapter) AppendSessionSample(ctx context.Context, sample domain.SessionSample) error {
	row, err := sampleToModel(sample)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Create(&row).Error
}

// RecentSessionSamples returns samples ordered newest first.
func (a *SQLiteAdapter) RecentSessionSamples(ctx context.Context, limit int) ([]domain.SessionSample, error) {
	var rows []SessionSampleModel
	if err := a.db.WithContext(ctx).Order("ts desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	samples := make([]domain.SessionSample, len(rows))
	for i, r := range rows {
		samples[i] = sampleToDomain(r)
	}
	return samples, nil
}
