package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/signal"
)

// Binder derives and validates the per-session behaviour signature that is
// embedded in access tokens.
type Binder struct{}

// NewBinder creates a signature binder.
func NewBinder() *Binder {
	return &Binder{}
}

// Compute returns the hex SHA-256 of the canonical JSON of the device core
// fields plus the IP prefix. Empty fields are omitted so partial
// fingerprints stay stable. Returns "" when nothing is available to bind.
func (b *Binder) Compute(device *domain.Device, ipPrefix string) string {
	core := make(map[string]string)
	if device != nil {
		d := signal.CanonicalDevice(*device)
		if d.Browser != "" {
			core["browser"] = d.Browser
		}
		if d.OS != "" {
			core["os"] = d.OS
		}
		if d.Screen != "" {
			core["screen"] = d.Screen
		}
		if d.Timezone != "" {
			core["timezone"] = d.Timezone
		}
	}
	if ipPrefix != "" {
		core["ip_prefix"] = ipPrefix
	}
	if len(core) == 0 {
		return ""
	}

	// encoding/json sorts map keys, giving a canonical encoding.
	payload, err := json.Marshal(core)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether the signature bound in a token matches the one
// derived from the current device and IP. An empty expectation or an
// underivable current signature is treated as a match: absence of evidence
// must not downgrade a session.
func (b *Binder) Matches(tokenSignature string, device *domain.Device, ip string) bool {
	if tokenSignature == "" {
		return true
	}
	current := b.Compute(device, signal.Prefix(ip))
	if current == "" {
		return true
	}
	return current == tokenSignature
}
