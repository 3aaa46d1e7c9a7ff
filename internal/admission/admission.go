package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scanq/internal/metrics"
	"scanq/internal/ratelimit"
	"scanq/internal/tier"
)

// Subject is the identity a request acts as. Tier is re-read from the
// store at decision time by the caller; nothing here caches it.
type Subject struct {
	ID    uuid.UUID
	Email string
	Tier  tier.Tier
}

// DeniedKind classifies why admission was refused.
type DeniedKind string

const (
	DeniedMode  DeniedKind = "mode"
	DeniedQuota DeniedKind = "quota"
	DeniedDaily DeniedKind = "daily"
)

// DeniedError is the user-facing admission refusal. It is surfaced
// synchronously to the caller and is never retried.
type DeniedError struct {
	Kind   DeniedKind
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

// UsageCounter counts an owner's recent scans for the daily cap check.
type UsageCounter interface {
	CountScansSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
}

// Controller decides whether a subject may submit work right now. The
// capability check is pure and runs first; the quota checks touch
// shared state and are skipped entirely on a capability denial.
type Controller struct {
	tiers   *tier.Registry
	limiter *ratelimit.Limiter
	usage   UsageCounter
	logger  *slog.Logger
	now     func() time.Time
}

func NewController(tiers *tier.Registry, limiter *ratelimit.Limiter, usage UsageCounter, logger *slog.Logger) *Controller {
	return &Controller{tiers: tiers, limiter: limiter, usage: usage, logger: logger, now: time.Now}
}

// CheckMode is the pure capability check for a tier and scan mode.
func (c *Controller) CheckMode(sub Subject, mode string) error {
	limits := c.tiers.Limits(sub.Tier, sub.Email)
	if limits.ModeAllowed(mode) {
		return nil
	}
	return &DeniedError{
		Kind: DeniedMode,
		Reason: fmt.Sprintf("Scan mode '%s' not allowed for %s tier. Allowed modes: %s",
			mode, limits.Tier, strings.Join(limits.AllowedModes, ", ")),
	}
}

// CheckAccess composes the capability and quota checks. The returned
// decision carries the rate-limit header values even on denial.
func (c *Controller) CheckAccess(ctx context.Context, sub Subject, mode string) (ratelimit.Decision, error) {
	if err := c.CheckMode(sub, mode); err != nil {
		return ratelimit.Decision{}, err
	}

	// Bypass subjects never touch the window store and carry no
	// rate-limit headers.
	if c.tiers.Bypass(sub.Email) {
		return ratelimit.Decision{Allowed: true}, nil
	}

	limits := c.tiers.Limits(sub.Tier, sub.Email)
	decision := c.limiter.Check(ctx, sub.ID.String(), limits)
	if !decision.Allowed {
		metrics.RecordRateLimitDenied(string(limits.Tier))
		return decision, &DeniedError{Kind: DeniedQuota, Reason: "Rate limit exceeded"}
	}

	if err := c.checkDailyCap(ctx, sub, limits); err != nil {
		return decision, err
	}

	return decision, nil
}

// checkDailyCap enforces the per-tier scans-per-day ceiling. A counter
// failure allows the request: submission availability wins over strict
// enforcement, same as the sliding window.
func (c *Controller) checkDailyCap(ctx context.Context, sub Subject, limits tier.Limits) error {
	if limits.ScansPerDay == nil || c.usage == nil {
		return nil
	}

	count, err := c.usage.CountScansSince(ctx, sub.ID, c.now().Add(-24*time.Hour))
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("daily_cap_degraded", "subject", sub.ID, "error", err)
		}
		return nil
	}

	if count >= *limits.ScansPerDay {
		return &DeniedError{
			Kind:   DeniedDaily,
			Reason: fmt.Sprintf("Daily scan limit reached (%d scans per day)", *limits.ScansPerDay),
		}
	}
	return nil
}
