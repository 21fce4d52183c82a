package domain

// RiskLevel categorises a numeric risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Assessment is the result of scoring a login or an in-session telemetry
// sample. Score is always within [0,100].
type Assessment struct {
	Score          int       `json:"risk_score"`
	Level          RiskLevel `json:"level"`
	Reasons        []string  `json:"reasons"`
	MissingSignals int       `json:"missing_signals"`
}

// Device is a canonicalised device fingerprint.
type Device struct {
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	Screen   string `json:"screen"`
	Timezone string `json:"timezone"`
}

// Empty reports whether no core fingerprint field is set.
func (d Device) Empty() bool {
	return d.Browser == "" && d.OS == "" && d.Screen == "" && d.Timezone == ""
}

// Geo is a client-reported geolocation sample. Fallback marks coarse
// (IP-derived or low-confidence) positions that must not train baselines.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Fallback  bool    `json:"fallback"`
}

// IPGeo is the coarse city-level location derived from an IP address.
type IPGeo struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// ChallengeType identifies the behavioural channel of a challenge.
type ChallengeType string

const (
	ChallengeTyping ChallengeType = "typing"
	ChallengeMouse  ChallengeType = "mouse"
	ChallengeTouch  ChallengeType = "touch"
)

// TypingSample carries the measured typing dynamics of one challenge.
type TypingSample struct {
	WPM        float64 `json:"wpm"`
	ErrorRate  float64 `json:"error_rate"`
	TimingMean float64 `json:"timing_mean_ms"`
}

// PointerSample carries mouse/touch dynamics of one challenge.
type PointerSample struct {
	PathLen float64 `json:"path_len"`
	Clicks  float64 `json:"clicks"`
}

// Challenge is a behavioural challenge response submitted at login or
// step-up. Exactly one of Typing/Pointer is set, matching Type.
type Challenge struct {
	Type    ChallengeType  `json:"type"`
	Typing  *TypingSample  `json:"typing,omitempty"`
	Pointer *PointerSample `json:"pointer,omitempty"`
}

// LoginMetrics is the normalised signal tuple consumed by the risk engine.
// Optional fields are pointers so "absent" and "zero" stay distinct.
type LoginMetrics struct {
	Device       *Device  `json:"device,omitempty"`
	Geo          *Geo     `json:"geo,omitempty"`
	IP           string   `json:"ip,omitempty"`
	IPASN        string   `json:"ip_asn,omitempty"`
	IPASNOrg     string   `json:"ip_asn_org,omitempty"`
	IPCity       string   `json:"ip_city,omitempty"`
	IPRegion     string   `json:"ip_region,omitempty"`
	IPCountry    string   `json:"ip_country,omitempty"`
	ScrollMaxPct *float64 `json:"scroll_max_pct,omitempty"`
	DwellMS      *float64 `json:"dwell_ms,omitempty"`
}

// SessionTelemetry is a low-cadence in-session sample posted by clients.
type SessionTelemetry struct {
	Device          *Device  `json:"device,omitempty"`
	Geo             *Geo     `json:"geo,omitempty"`
	IP              string   `json:"ip,omitempty"`
	IPASN           string   `json:"ip_asn,omitempty"`
	IPCity          string   `json:"ip_city,omitempty"`
	IPRegion        string   `json:"ip_region,omitempty"`
	IPCountry       string   `json:"ip_country,omitempty"`
	IdleJitterMS    *float64 `json:"idle_jitter_ms,omitempty"`
	PointerSpeedStd *float64 `json:"pointer_speed_std,omitempty"`
	NavBFUsage      *float64 `json:"nav_bf_usage,omitempty"`
}

// Metrics converts a telemetry sample to the login-shaped signal tuple so
// both scoring paths share the same taxonomy.
func (t SessionTelemetry) Metrics() LoginMetrics {
	return LoginMetrics{
		Device:    t.Device,
		Geo:       t.Geo,
		IP:        t.IP,
		IPASN:     t.IPASN,
		IPCity:    t.IPCity,
		IPRegion:  t.IPRegion,
		IPCountry: t.IPCountry,
	}
}
