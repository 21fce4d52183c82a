package risk

import (
	"fmt"
	"math"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/policy"
	"github.com/finvault/guardian/internal/core/services/signal"
)

// minStd is the smallest baseline deviation considered usable for
// standardised scoring; below it the absolute-difference ladder applies.
const minStd = 1e-6

// Geo tolerance bounds in metres for the precise-distance ladder.
const (
	geoTolMin = 100.0
	geoTolMax = 500.0
	// Above this accuracy a sample is too coarse to compare point-to-point
	// and the engine falls back to the IP city ladder.
	geoAccuracyCeiling = 500.0
)

// Engine fuses behavioural, device, geo, and network signals into a
// bounded risk score. It never fails on malformed input: absent or
// unusable signals are penalised as missing instead.
type Engine struct {
	policy *policy.Policy
}

// NewEngine creates a risk engine bound to the given policy.
func NewEngine(p *policy.Policy) *Engine {
	return &Engine{policy: p}
}

// mode carries the weighting differences between login and in-session
// scoring.
type mode struct {
	deviceScale    float64
	geoScale       float64
	denyPoints     float64
	wantsChallenge bool
}

var (
	loginMode   = mode{deviceScale: 1.0, geoScale: 1.0, denyPoints: 25, wantsChallenge: true}
	sessionMode = mode{deviceScale: 0.5, geoScale: 0.5, denyPoints: 20}
)

// ScoreLogin evaluates a login or step-up attempt. Any argument may be nil.
func (e *Engine) ScoreLogin(challenge *domain.Challenge, metrics *domain.LoginMetrics, profile *domain.BehaviorProfile) domain.Assessment {
	return e.score(challenge, metrics, profile, loginMode, nil)
}

// ScoreSession evaluates an in-session telemetry sample with softened
// device/geo weights plus the passive in-session tells.
func (e *Engine) ScoreSession(telemetry domain.SessionTelemetry, profile *domain.BehaviorProfile) domain.Assessment {
	metrics := telemetry.Metrics()
	return e.score(nil, &metrics, profile, sessionMode, &telemetry)
}

func (e *Engine) score(challenge *domain.Challenge, metrics *domain.LoginMetrics, profile *domain.BehaviorProfile, m mode, telemetry *domain.SessionTelemetry) domain.Assessment {
	var score float64
	var reasons []string
	add := func(pts float64, reason string) {
		score += pts
		reasons = append(reasons, reason)
	}

	if metrics == nil {
		metrics = &domain.LoginMetrics{}
	}

	// Missing-signal penalties, in the stable evaluation order.
	missing := 0
	if profile == nil {
		missing++
		add(20, "No behaviour profile on file")
	}
	if m.wantsChallenge && challenge == nil {
		missing++
		add(15, "Behavioural challenge missing")
	}

	device := metrics.Device
	if device == nil || device.Empty() {
		missing++
		add(20*m.deviceScale, "Device fingerprint missing")
		device = nil
	}

	geo := metrics.Geo
	geoMissing := geo == nil || geo.Fallback
	if geoMissing {
		missing++
		reasons = append(reasons, "Precise geolocation missing")
		pts := 25 + e.cityFallbackPoints(metrics, profile, &reasons)
		score += pts * m.geoScale
	}

	// Behavioural deviation from baselines.
	if challenge != nil && profile != nil {
		e.scoreChallenge(challenge, profile, add)
	}

	// Device fingerprint comparison.
	if device != nil && profile != nil && profile.DeviceFingerprint != nil {
		e.scoreDevice(*device, *profile.DeviceFingerprint, m.deviceScale, add)
	}

	// Geolocation comparison.
	if !geoMissing {
		e.scoreGeo(*geo, metrics, profile, m.geoScale, add)
	}

	// Network reputation and known networks.
	e.scoreIP(metrics, profile, m, add)

	// Passive tells.
	if metrics.ScrollMaxPct != nil && *metrics.ScrollMaxPct < 10 {
		add(2, "Scroll depth below 10%")
	}
	if metrics.DwellMS != nil && *metrics.DwellMS < 2000 {
		add(2, "Dwell time below 2s")
	}
	if telemetry != nil {
		if telemetry.IdleJitterMS != nil && *telemetry.IdleJitterMS > 3000 {
			add(5, "Idle jitter above 3s")
		}
		if telemetry.PointerSpeedStd != nil && *telemetry.PointerSpeedStd > 1.5 {
			add(5, "Pointer speed variance elevated")
		}
		if telemetry.NavBFUsage != nil && *telemetry.NavBFUsage > 5 {
			add(3, "Excessive back/forward navigation")
		}
	}

	// Escalation floors for compounded signal loss.
	if missing >= 3 {
		score = math.Max(score, 65)
	} else if missing >= 2 {
		score = math.Max(score, 45)
	}

	final := int(math.Round(math.Min(100, math.Max(0, score))))
	return domain.Assessment{
		Score:          final,
		Level:          e.policy.Level(final),
		Reasons:        reasons,
		MissingSignals: missing,
	}
}

// scoreChallenge applies the standardised-deviation ladders for each
// behavioural dimension present in the challenge, falling back to the
// absolute-difference ladder when the baseline has no usable deviation.
func (e *Engine) scoreChallenge(challenge *domain.Challenge, profile *domain.BehaviorProfile, add func(float64, string)) {
	switch challenge.Type {
	case domain.ChallengeTyping:
		if challenge.Typing == nil {
			return
		}
		t := challenge.Typing
		tb := profile.Baselines.Typing
		scoreDim(t.WPM, tb.WPM, dimLadder{z3: 25, z2: 15, z15: 8, absHi: 20, absHiPts: 15, absLo: 10, absLoPts: 8},
			func(diff float64) string { return fmt.Sprintf("Typing speed differs by %.1f WPM", diff) }, add)
		scoreDim(t.ErrorRate, tb.Err, dimLadder{z3: 22, z2: 13, z15: 7, absHi: 0.2, absHiPts: 13, absLo: 0.1, absLoPts: 7},
			func(diff float64) string { return fmt.Sprintf("Error rate differs by %.2f", diff) }, add)
		scoreDim(t.TimingMean, tb.Timing, dimLadder{z3: 20, z2: 12, z15: 6, absHi: 200, absHiPts: 12, absLo: 100, absLoPts: 6},
			func(diff float64) string { return fmt.Sprintf("Keystroke timing mean differs by %.0fms", diff) }, add)
	case domain.ChallengeMouse, domain.ChallengeTouch:
		if challenge.Pointer == nil {
			return
		}
		p := challenge.Pointer
		pb := profile.Baselines.Pointer
		scoreDim(p.PathLen, pb.PathLen, dimLadder{z3: 12, z2: 7, absHi: 10, absHiPts: 7},
			func(diff float64) string { return fmt.Sprintf("Pointer path length differs by %.0f points", diff) }, add)
		scoreDim(p.Clicks, pb.Clicks, dimLadder{z3: 10, z2: 6, absHi: 2, absHiPts: 6},
			func(diff float64) string { return fmt.Sprintf("Click count differs by %.0f", diff) }, add)
	}
}

// dimLadder holds one dimension's penalty ladder. z15 of zero disables the
// z>1.5 rung (pointer dimensions start at z>2). absLo of zero disables the
// lower absolute rung.
type dimLadder struct {
	z3, z2, z15     float64
	absHi, absHiPts float64
	absLo, absLoPts float64
}

func scoreDim(x float64, dim domain.BaselineDim, l dimLadder, describe func(float64) string, add func(float64, string)) {
	if !dim.Set {
		return
	}
	diff := math.Abs(x - dim.Mean)
	if dim.Std > minStd {
		z := diff / dim.Std
		var pts float64
		switch {
		case z > 3:
			pts = l.z3
		case z > 2:
			pts = l.z2
		case l.z15 > 0 && z > 1.5:
			pts = l.z15
		}
		if pts > 0 {
			add(pts, fmt.Sprintf("%s (z=%.2f)", describe(diff), z))
		}
		return
	}
	// Absolute-difference fallback against the raw stored mean.
	switch {
	case diff > l.absHi:
		add(l.absHiPts, describe(diff))
	case l.absLo > 0 && diff > l.absLo:
		add(l.absLoPts, describe(diff))
	}
}

func (e *Engine) scoreDevice(cur, prof domain.Device, scale float64, add func(float64, string)) {
	cur = signal.CanonicalDevice(cur)
	prof = signal.CanonicalDevice(prof)

	curBrand, curMajor := signal.BrowserParts(cur.Browser)
	profBrand, profMajor := signal.BrowserParts(prof.Browser)
	if curBrand != "" && profBrand != "" {
		if curBrand != profBrand {
			add(20*scale, fmt.Sprintf("Browser changed: %s vs %s", cur.Browser, prof.Browser))
		} else if curMajor >= 0 && profMajor >= 0 && abs(curMajor-profMajor) > 1 {
			add(5*scale, fmt.Sprintf("Browser version drift: %d vs %d", curMajor, profMajor))
		}
	}

	curOS := signal.OSFamily(cur.OS)
	profOS := signal.OSFamily(prof.OS)
	if curOS != "" && profOS != "" && curOS != profOS {
		add(15*scale, fmt.Sprintf("OS changed: %s vs %s", cur.OS, prof.OS))
	}

	if cw, ch, ok := signal.ParseScreen(cur.Screen); ok {
		if pw, ph, ok2 := signal.ParseScreen(prof.Screen); ok2 {
			// ±100 px is inclusive tolerance.
			if abs(cw-pw) > 100 || abs(ch-ph) > 100 {
				if signal.ScreenClass(cur.Screen) == signal.ScreenClass(prof.Screen) {
					add(5*scale, fmt.Sprintf("Screen changed: %s vs %s", cur.Screen, prof.Screen))
				} else {
					add(15*scale, fmt.Sprintf("Screen class changed: %s vs %s", cur.Screen, prof.Screen))
				}
			}
		}
	}

	if cur.Timezone != "" && prof.Timezone != "" && cur.Timezone != prof.Timezone {
		add(10*scale, fmt.Sprintf("Timezone changed: %s vs %s", cur.Timezone, prof.Timezone))
	}

	if cur.Browser == "" || cur.OS == "" || cur.Screen == "" || cur.Timezone == "" {
		add(10*scale, "Device fingerprint incomplete")
	}
}

func (e *Engine) scoreGeo(geo domain.Geo, metrics *domain.LoginMetrics, profile *domain.BehaviorProfile, scale float64, add func(float64, string)) {
	if geo.Accuracy > geoAccuracyCeiling {
		// Too coarse for point comparison: IP city ladder, base 10.
		var cityReasons []string
		cityPts := e.cityFallbackPoints(metrics, profile, &cityReasons)
		pts := math.Max(10, cityPts)
		add(pts*scale, fmt.Sprintf("Geo accuracy %.0fm too coarse; using IP city", geo.Accuracy))
		for _, r := range cityReasons {
			add(0, r)
		}
		return
	}

	if profile == nil || profile.Geo == nil {
		return
	}

	tol := math.Min(geoTolMax, math.Max(geoTolMin, geo.Accuracy))
	dist := signal.HaversineMeters(geo.Latitude, geo.Longitude, profile.Geo.Latitude, profile.Geo.Longitude)
	if dist > tol {
		over := dist - tol
		pts := 10 + math.Min(20, over/100)
		add(pts*scale, fmt.Sprintf("Geo differs by %.2f km (> tol %.0fm)", dist/1000, tol))
	}
}

// cityFallbackPoints compares the IP-derived coarse location against the
// profile's last low-risk coarse location. Reasons are appended to out;
// the returned points are unscaled.
func (e *Engine) cityFallbackPoints(metrics *domain.LoginMetrics, profile *domain.BehaviorProfile, out *[]string) float64 {
	if metrics.IPCity == "" && metrics.IPRegion == "" && metrics.IPCountry == "" {
		return 0
	}
	if profile == nil || profile.IPGeo == nil {
		*out = append(*out, "No coarse location history")
		return 15
	}
	ipGeo := profile.IPGeo
	if metrics.IPCountry != "" && ipGeo.Country != "" && metrics.IPCountry != ipGeo.Country {
		*out = append(*out, fmt.Sprintf("IP country changed: %s vs %s", metrics.IPCountry, ipGeo.Country))
		return 10
	}
	if metrics.IPCity != "" && ipGeo.City != "" && metrics.IPCity == ipGeo.City {
		return 0
	}
	if metrics.IPRegion != "" && ipGeo.Region != "" {
		if metrics.IPRegion == ipGeo.Region {
			*out = append(*out, "IP city changed within region")
			return 3
		}
		*out = append(*out, fmt.Sprintf("IP region changed: %s vs %s", metrics.IPRegion, ipGeo.Region))
		return 7
	}
	*out = append(*out, "IP city changed")
	return 7
}

func (e *Engine) scoreIP(metrics *domain.LoginMetrics, profile *domain.BehaviorProfile, m mode, add func(float64, string)) {
	ip := metrics.IP
	if ip == "" {
		add(5, "Client IP unknown")
		return
	}

	if e.policy.Denied(ip) {
		add(m.denyPoints, "IP within denylisted prefix")
	}

	asnFactor := 1.0
	if e.policy.IsCarrierASN(metrics.IPASN) {
		asnFactor = policy.CarrierASNFactor
		add(0, "Carrier/mobile ASN detected; down-weighted IP-based checks")
	}

	if e.policy.AllowlistConfigured() && !e.policy.Allowed(ip) {
		add(5*asnFactor, "IP outside allowlist")
	}

	if profile != nil {
		prefix := signal.Prefix(ip)
		switch {
		case prefix != "" && profile.KnowsNetwork(prefix):
			add(-7, "IP within known networks")
		case profile.HasKnownNetworks():
			add(3*asnFactor, "IP outside known networks")
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
