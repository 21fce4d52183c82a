package domain

import "time"

// Login attempt outcomes recorded in the audit log.
const (
	AttemptSuccess    = "success"
	AttemptFailure    = "failure"
	AttemptChallenged = "challenged"
	AttemptBlocked    = "blocked"
)

// LoginAttempt is one append-only audit row for a login decision.
type LoginAttempt struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceRecord is the enrichment row for a canonicalised device.
type DeviceRecord struct {
	Hash      string
	UserID    string
	Device    Device
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int64
}

// IPRecord is the enrichment row for an observed client IP.
type IPRecord struct {
	IP        string
	Prefix    string
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

// DeviceIPLink joins devices and IPs observed together.
type DeviceIPLink struct {
	DeviceHash string
	IP         string
	FirstSeen  time.Time
	LastSeen   time.Time
	SeenCount  int64
}
