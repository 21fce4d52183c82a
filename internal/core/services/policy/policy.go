package policy

import (
	"log"
	"net"
	"strings"

	"github.com/finvault/guardian/internal/config"
	"github.com/finvault/guardian/internal/core/domain"
)

// CarrierASNFactor down-weights IP-based checks when the client ASN is a
// known mobile carrier (CGNAT churn makes prefixes unreliable there).
const CarrierASNFactor = 0.3

// Policy resolves the tunables consulted by the risk engine and the
// known-network lifecycle. It is immutable after construction.
type Policy struct {
	HighThreshold   int
	MediumThreshold int

	PromotionThreshold int
	DecayDays          int

	carrierASNs map[string]struct{}
	deny        []*net.IPNet
	allow       []*net.IPNet
}

// FromConfig builds a Policy from the environment configuration. Malformed
// CIDR entries are logged and skipped.
func FromConfig(cfg *config.Config) *Policy {
	p := &Policy{
		HighThreshold:      cfg.HighThreshold,
		MediumThreshold:    cfg.MediumThreshold,
		PromotionThreshold: cfg.PromotionThreshold,
		DecayDays:          cfg.DecayDays,
		carrierASNs:        make(map[string]struct{}),
	}
	for _, asn := range cfg.CarrierASNs {
		p.carrierASNs[strings.ToUpper(strings.TrimSpace(asn))] = struct{}{}
	}
	p.deny = parsePrefixes(cfg.DenylistPrefixes)
	p.allow = parsePrefixes(cfg.AllowlistPrefixes)
	return p
}

// Default returns a Policy with the built-in defaults, used by tests and
// as a fallback when no configuration is supplied.
func Default() *Policy {
	return FromConfig(&config.Config{
		HighThreshold:      60,
		MediumThreshold:    40,
		PromotionThreshold: 3,
		DecayDays:          90,
		CarrierASNs:        []string{"AS55836", "AS45609", "AS55410", "AS55824"},
	})
}

func parsePrefixes(prefixes []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, pfx := range prefixes {
		_, n, err := net.ParseCIDR(strings.TrimSpace(pfx))
		if err != nil {
			log.Printf("Warning: skipping malformed CIDR %q: %v", pfx, err)
			continue
		}
		nets = append(nets, n)
	}
	return nets
}

// Level maps a clamped score to its categorical level.
func (p *Policy) Level(score int) domain.RiskLevel {
	switch {
	case score > p.HighThreshold:
		return domain.RiskHigh
	case score > p.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// IsCarrierASN reports whether asn is on the configured carrier list.
func (p *Policy) IsCarrierASN(asn string) bool {
	if asn == "" {
		return false
	}
	_, ok := p.carrierASNs[strings.ToUpper(strings.TrimSpace(asn))]
	return ok
}

// Denied reports whether ip falls inside a denylisted prefix.
func (p *Policy) Denied(ip string) bool {
	return contains(p.deny, ip)
}

// AllowlistConfigured reports whether an allowlist is in force.
func (p *Policy) AllowlistConfigured() bool {
	return len(p.allow) > 0
}

// Allowed reports whether ip falls inside an allowlisted prefix. Only
// meaningful when AllowlistConfigured.
func (p *Policy) Allowed(ip string) bool {
	return contains(p.allow, ip)
}

func contains(nets []*net.IPNet, ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
