package storage

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter implements the storage ports using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// UserModel is the GORM model for identity principals.
type UserModel struct {
	ID                 string `gorm:"primaryKey"`
	Name               string
	Email              string `gorm:"index"`
	Phone              string `gorm:"index"`
	Role               string
	Verified           bool
	VerifiedAt         *time.Time
	OnboardingComplete bool
	CreatedAt          time.Time
}

// ProfileModel stores the behaviour profile as a JSON document plus the
// columns the background jobs query on.
type ProfileModel struct {
	UserID       string `gorm:"primaryKey"`
	Document     string
	DriftFlagged bool
	UpdatedAt    time.Time
}

// NetworkDayModel is one distinct-day counter row.
type NetworkDayModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index:idx_network_day,unique"`
	Prefix    string `gorm:"index:idx_network_day,unique"`
	Day       string `gorm:"index:idx_network_day,unique"`
	FirstSeen time.Time
	LastSeen  time.Time
}

// GeoEventModel is one raw geolocation observation.
type GeoEventModel struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   string `gorm:"index"`
	Lat      float64
	Lon      float64
	TileLat  float64
	TileLon  float64
	Accuracy float64
	TS       time.Time `gorm:"index"`
}

// GeoTileModel is the per-user tile aggregate.
type GeoTileModel struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      string  `gorm:"index:idx_geo_tile,unique"`
	TileLat     float64 `gorm:"index:idx_geo_tile,unique"`
	TileLon     float64 `gorm:"index:idx_geo_tile,unique"`
	Count       int64
	AvgAccuracy float64
	LastSeen    time.Time `gorm:"index"`
}

// LoginAttemptModel is one audit row.
type LoginAttemptModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Location  string
	Status    string
	Details   string
	Timestamp time.Time `gorm:"index"`
}

// StepUpRecordModel is one append-only step-up log row. Reasons and
// Metadata are JSON encoded.
type StepUpRecordModel struct {
	ID        uint   `gorm:"primaryKey"`
	User      string `gorm:"index"`
	Method    string
	Success   bool
	Reason    string
	RiskScore int
	Reasons   string
	Metadata  string
	Timestamp time.Time `gorm:"index"`
}

// MagicLinkModel stores one-shot login tokens; only the bcrypt hash of the
// secret is persisted.
type MagicLinkModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	Email      string
	SecretHash string
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// TrustedDeviceModel records a confirmed device/network pair.
type TrustedDeviceModel struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"index:idx_trusted_pair,unique"`
	DeviceHash string `gorm:"index:idx_trusted_pair,unique"`
	IPPrefix   string `gorm:"index:idx_trusted_pair,unique"`
	CreatedAt  time.Time
}

// ContextChallengeModel holds the per-user security question.
type ContextChallengeModel struct {
	UserID   string `gorm:"primaryKey"`
	Question string
	Answer   string
}

// DeviceRecordModel is the enrichment row for a canonical device.
type DeviceRecordModel struct {
	Hash      string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Browser   string
	OS        string
	Screen    string
	Timezone  string
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int64
}

// IPRecordModel is the enrichment row for an observed client IP.
type IPRecordModel struct {
	IP        string `gorm:"primaryKey"`
	Prefix    string `gorm:"index"`
	Private   bool
	ASN       string
	ASNOrg    string
	City      string
	Region    string
	Country   string
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int64
}

// DeviceIPLinkModel joins devices and IPs observed together.
type DeviceIPLinkModel struct {
	ID         uint   `gorm:"primaryKey"`
	DeviceHash string `gorm:"index:idx_device_ip,unique"`
	IP         string `gorm:"index:idx_device_ip,unique"`
	FirstSeen  time.Time
	LastSeen   time.Time
	SeenCount  int64
}

// SessionSampleModel is the thin per-ingest audit row. Telemetry and
// Result are JSON encoded; Score is extracted for the drift scan.
type SessionSampleModel struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index"`
	UserID    string `gorm:"index"`
	Telemetry string
	Result    string
	Score     int
	TS        time.Time `gorm:"index"`
}

// AlertModel is one persisted alert feed entry.
type AlertModel struct {
	ID        uint `gorm:"primaryKey"`
	EventType string
	Details   string
	Timestamp time.Time `gorm:"index"`
}

// NewSQLiteAdapter initializes the database and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&UserModel{},
		&ProfileModel{},
		&NetworkDayModel{},
		&GeoEventModel{},
		&GeoTileModel{},
		&LoginAttemptModel{},
		&StepUpRecordModel{},
		&MagicLinkModel{},
		&TrustedDeviceModel{},
		&ContextChallengeModel{},
		&DeviceRecordModel{},
		&IPRecordModel{},
		&DeviceIPLinkModel{},
		&SessionSampleModel{},
		&AlertModel{},
	)
	if err != nil {
		return nil, err
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_attempts_status ON login_attempt_models(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_samples_user_ts ON session_sample_models(user_id, ts)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_network_day_user_prefix ON network_day_models(user_id, prefix)")

	return &SQLiteAdapter{db: db}, nil
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
