package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finvault/guardian/internal/core/domain"
)

func TestBinder_Compute(t *testing.T) {
	binder := NewBinder()
	device := &domain.Device{Browser: "Chrome 119", OS: "windows", Screen: "1920x1080", Timezone: "America/New_York"}

	// 1. Deterministic 64-hex digest for a full fingerprint.
	sig := binder.Compute(device, "203.0.113.0/24")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, binder.Compute(device, "203.0.113.0/24"))

	// 2. Any input field changes the digest.
	other := *device
	other.Browser = "Firefox 121"
	assert.NotEqual(t, sig, binder.Compute(&other, "203.0.113.0/24"))
	assert.NotEqual(t, sig, binder.Compute(device, "198.51.100.0/24"))

	// 3. Whitespace and screen formatting are canonicalised away.
	noisy := &domain.Device{Browser: " Chrome 119 ", OS: "windows", Screen: " 1920 x 1080 ", Timezone: "America/New_York"}
	assert.Equal(t, sig, binder.Compute(noisy, "203.0.113.0/24"))

	// 4. Empty fields are omitted rather than hashed as empty strings, so
	// a partial fingerprint matches itself regardless of representation.
	partial := binder.Compute(&domain.Device{Browser: "Chrome 119"}, "")
	assert.NotEmpty(t, partial)
	assert.NotEqual(t, sig, partial)

	// 5. Nothing to bind yields the empty signature.
	assert.Empty(t, binder.Compute(nil, ""))
	assert.Empty(t, binder.Compute(&domain.Device{}, ""))

	// 6. An IP prefix alone is bindable.
	assert.NotEmpty(t, binder.Compute(nil, "203.0.113.0/24"))
}

func TestBinder_Matches(t *testing.T) {
	binder := NewBinder()
	device := &domain.Device{Browser: "Chrome 119", OS: "windows", Screen: "1920x1080", Timezone: "America/New_York"}
	sig := binder.Compute(device, "203.0.113.0/24")

	// 1. Same device on the same network matches.
	assert.True(t, binder.Matches(sig, device, "203.0.113.45"))

	// 2. A different device or network does not.
	other := *device
	other.OS = "Ubuntu 22.04"
	assert.False(t, binder.Matches(sig, &other, "203.0.113.45"))
	assert.False(t, binder.Matches(sig, device, "198.51.100.7"))

	// 3. No bound signature never downgrades.
	assert.True(t, binder.Matches("", &other, "198.51.100.7"))

	// 4. An underivable current signature never downgrades either.
	assert.True(t, binder.Matches(sig, nil, ""))
}
