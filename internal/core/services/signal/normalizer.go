package signal

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/finvault/guardian/internal/core/domain"
)

// Screen size classes derived from the canonical width.
const (
	ScreenDesktop = "desktop"
	ScreenTablet  = "tablet"
	ScreenMobile  = "mobile"
)

// CanonicalDevice normalises a raw device payload to the stable shape the
// risk engine compares against. Unknown fields were already dropped by the
// request decoder; here the known ones are trimmed and case-folded.
func CanonicalDevice(raw domain.Device) domain.Device {
	return domain.Device{
		Browser:  strings.TrimSpace(raw.Browser),
		OS:       strings.TrimSpace(raw.OS),
		Screen:   canonicalScreen(raw.Screen),
		Timezone: strings.TrimSpace(raw.Timezone),
	}
}

func canonicalScreen(s string) string {
	w, h, ok := ParseScreen(s)
	if !ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%dx%d", w, h)
}

// BrowserParts splits a browser string such as "Chrome 119" into its
// canonical lowercase brand and major version. A missing or malformed
// version yields major -1.
func BrowserParts(browser string) (brand string, major int) {
	major = -1
	fields := strings.Fields(strings.TrimSpace(browser))
	if len(fields) == 0 {
		return "", major
	}
	brand = strings.ToLower(fields[0])
	if len(fields) > 1 {
		ver := fields[len(fields)-1]
		if dot := strings.IndexByte(ver, '.'); dot >= 0 {
			ver = ver[:dot]
		}
		if n, err := strconv.Atoi(ver); err == nil {
			major = n
		}
	}
	return brand, major
}

// OSFamily canonicalises an OS string to a coarse family.
func OSFamily(os string) string {
	s := strings.ToLower(strings.TrimSpace(os))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "win"):
		return "windows"
	case strings.Contains(s, "mac") || strings.Contains(s, "darwin") || strings.Contains(s, "os x"):
		return "macos"
	case strings.Contains(s, "iphone") || strings.Contains(s, "ipad") || strings.Contains(s, "ios"):
		return "ios"
	case strings.Contains(s, "android"):
		return "android"
	case strings.Contains(s, "linux") || strings.Contains(s, "ubuntu") || strings.Contains(s, "fedora"):
		return "linux"
	default:
		return s
	}
}

// ParseScreen parses a "WxH" screen string.
func ParseScreen(s string) (w, h int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ScreenClass buckets a screen by its canonical width.
func ScreenClass(s string) string {
	w, _, ok := ParseScreen(s)
	if !ok {
		return ""
	}
	switch {
	case w >= 1280:
		return ScreenDesktop
	case w >= 700:
		return ScreenTablet
	default:
		return ScreenMobile
	}
}

// ClientIP extracts the best-effort client IP from proxy headers, falling
// back to the socket peer. Returns the IP and whether it came from a proxy
// header.
func ClientIP(r *http.Request) (string, bool) {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip, true
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip, true
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip, true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr), false
	}
	return host, false
}

// Prefix maps an IP to its CIDR block: /24 for IPv4, /64 for IPv6.
// Returns "" for unparseable input.
func Prefix(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String() + "/24"
	}
	masked := parsed.Mask(net.CIDRMask(64, 128))
	return masked.String() + "/64"
}

// IsPrivate reports whether ip is RFC1918, link-local, or loopback.
// Unparseable input is treated as private so it never trains counters.
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return true
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast()
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Asin(math.Sqrt(a))
}
