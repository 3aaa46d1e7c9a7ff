package tier

import (
	"strings"
	"time"

	"scanq/internal/config"
)

// Tier is the closed set of subscription levels. Incoming values are
// normalized once at the boundary via Normalize; downstream code never
// re-derives a tier from raw strings.
//
// Centralizing these here avoids scattering string literals like
// "free" or "enterprise" across packages.
type Tier string

const (
	Free       Tier = "free"
	Premium    Tier = "premium"
	Enterprise Tier = "enterprise"
)

// Normalize maps an arbitrary tier string onto the closed Tier set.
// Unknown values fall back to Free, the most restrictive tier.
func Normalize(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Premium:
		return Premium
	case Enterprise:
		return Enterprise
	default:
		return Free
	}
}

// Paid reports whether the tier routes work to the high-priority lane.
func (t Tier) Paid() bool {
	return t == Premium || t == Enterprise
}

// Limits captures everything a tier entitles a subject to. A nil
// RateLimit/ScansPerDay means unlimited; a zero RetentionDays with
// Unlimited set means no horizon.
type Limits struct {
	Tier          Tier
	RateLimit     *int
	RateWindow    time.Duration
	ScansPerDay   *int
	AllowedModes  []string
	RetentionDays *int
}

// Registry resolves tier limits and the bypass subject list. Limits
// come from config with built-in defaults mirroring the hosted plans.
type Registry struct {
	limits map[Tier]Limits
	bypass map[string]struct{}
}

func intPtr(v int) *int { return &v }

func defaultLimits() map[Tier]Limits {
	return map[Tier]Limits{
		Free: {
			Tier:          Free,
			RateLimit:     intPtr(100),
			RateWindow:    time.Hour,
			ScansPerDay:   intPtr(5),
			AllowedModes:  []string{"common", "fast"},
			RetentionDays: intPtr(30),
		},
		Premium: {
			Tier:          Premium,
			RateLimit:     intPtr(10000),
			RateWindow:    30 * 24 * time.Hour,
			AllowedModes:  []string{"common", "fast", "full", "stealth", "aggressive"},
			RetentionDays: intPtr(365),
		},
		Enterprise: {
			Tier:         Enterprise,
			AllowedModes: []string{"common", "fast", "full", "stealth", "aggressive", "custom"},
		},
	}
}

// NewRegistry builds a Registry from config, falling back to the
// built-in plan defaults for any tier left unconfigured.
func NewRegistry(cfg config.TiersConfig) *Registry {
	limits := defaultLimits()

	apply := func(t Tier, tc config.TierConfig) {
		l := limits[t]
		if tc.RateLimit > 0 {
			l.RateLimit = intPtr(tc.RateLimit)
		}
		if tc.RateWindowSecs > 0 {
			l.RateWindow = time.Duration(tc.RateWindowSecs) * time.Second
		}
		if tc.ScansPerDay > 0 {
			l.ScansPerDay = intPtr(tc.ScansPerDay)
		}
		if len(tc.AllowedModes) > 0 {
			l.AllowedModes = tc.AllowedModes
		}
		if tc.RetentionDays > 0 {
			l.RetentionDays = intPtr(tc.RetentionDays)
		}
		limits[t] = l
	}

	apply(Free, cfg.Free)
	apply(Premium, cfg.Premium)
	apply(Enterprise, cfg.Enterprise)

	bypass := make(map[string]struct{}, len(cfg.BypassEmails))
	for _, e := range cfg.BypassEmails {
		bypass[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}

	return &Registry{limits: limits, bypass: bypass}
}

// Limits returns the limits for a tier. Bypass subjects always receive
// enterprise limits regardless of their stored tier.
func (r *Registry) Limits(t Tier, email string) Limits {
	if email != "" && r.Bypass(email) {
		return r.limits[Enterprise]
	}
	l, ok := r.limits[t]
	if !ok {
		return r.limits[Free]
	}
	return l
}

// Bypass reports whether the subject is exempt from quota enforcement.
func (r *Registry) Bypass(email string) bool {
	_, ok := r.bypass[strings.ToLower(email)]
	return ok
}

// ModeAllowed reports whether the limits permit the requested scan mode.
func (l Limits) ModeAllowed(mode string) bool {
	for _, m := range l.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Horizon returns the retention cutoff relative to now, and whether a
// horizon applies at all. Tiers without a retention limit keep history
// forever.
func (l Limits) Horizon(now time.Time) (time.Time, bool) {
	if l.RetentionDays == nil {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -*l.RetentionDays), true
}
