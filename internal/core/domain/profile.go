package domain

import "time"

// MaxBaselineHistory bounds the per-profile snapshot queue.
const MaxBaselineHistory = 3

// BaselineDim is the EWMA mean/variance of one behavioural dimension.
// Set distinguishes a seeded baseline from the zero value.
type BaselineDim struct {
	Mean float64 `json:"mean"`
	Var  float64 `json:"var"`
	Std  float64 `json:"std"`
	Set  bool    `json:"set"`
}

// TypingBaseline groups the typing dimensions.
type TypingBaseline struct {
	WPM    BaselineDim `json:"wpm"`
	Err    BaselineDim `json:"err"`
	Timing BaselineDim `json:"timing"`
}

// PointerBaseline groups the mouse/touch dimensions.
type PointerBaseline struct {
	PathLen BaselineDim `json:"path_len"`
	Clicks  BaselineDim `json:"clicks"`
}

// Baselines is the tagged pair of behavioural baseline families.
type Baselines struct {
	Typing  TypingBaseline  `json:"typing"`
	Pointer PointerBaseline `json:"pointer"`
}

// BaselineSnapshot is a value snapshot of the baselines at a given version.
type BaselineSnapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Baselines Baselines `json:"baselines"`
}

// BehaviorProfile is the per-user behavioural document. It is updated with
// last-write-wins semantics; BaselineVersion is monotonic for traceability,
// not for conflict resolution.
type BehaviorProfile struct {
	UserID            string             `json:"user_id"`
	DeviceFingerprint *Device            `json:"device_fingerprint,omitempty"`
	Geo               *Geo               `json:"geo,omitempty"`
	IPGeo             *IPGeo             `json:"ip_geo,omitempty"`
	KnownNetworks     []string           `json:"known_networks,omitempty"`
	Baselines         Baselines          `json:"baselines"`
	BaselineVersion   int                `json:"baseline_version"`
	BaselineStable    bool               `json:"baseline_stable"`
	LowRiskStreak     int                `json:"low_risk_streak"`
	BaselineHistory   []BaselineSnapshot `json:"baseline_history,omitempty"`
	BehaviorSignature string             `json:"behavior_signature,omitempty"`
	DriftFlagged      bool               `json:"drift_flagged,omitempty"`
	LastSeen          time.Time          `json:"last_seen"`
}

// HasKnownNetworks reports whether any prefix has been promoted.
func (p *BehaviorProfile) HasKnownNetworks() bool {
	return p != nil && len(p.KnownNetworks) > 0
}

// KnowsNetwork reports whether prefix is in the promoted set.
func (p *BehaviorProfile) KnowsNetwork(prefix string) bool {
	if p == nil {
		return false
	}
	for _, kn := range p.KnownNetworks {
		if kn == prefix {
			return true
		}
	}
	return false
}

// PushSnapshot appends a snapshot, keeping only the newest MaxBaselineHistory.
func (p *BehaviorProfile) PushSnapshot(s BaselineSnapshot) {
	p.BaselineHistory = append(p.BaselineHistory, s)
	if n := len(p.BaselineHistory); n > MaxBaselineHistory {
		p.BaselineHistory = p.BaselineHistory[n-MaxBaselineHistory:]
	}
}
