package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scanq/internal/metrics"
	"scanq/internal/tier"
)

// Decision is the outcome of one quota check. Limited reports whether
// a finite limit applied at all; unlimited tiers and bypass subjects
// produce Limited=false and carry no header values.
type Decision struct {
	Allowed   bool
	Limited   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Degraded  bool
}

// WindowStore is the port over the shared sliding-window state. The
// purge/count/record sequence is intentionally not atomic: two
// concurrent requests at the boundary of the limit may both be
// admitted. This is a documented best-effort approximation.
type WindowStore interface {
	// Purge drops entries older than cutoff and returns the count of
	// surviving entries in the window.
	Purge(ctx context.Context, key string, cutoff time.Time) (int, error)
	// Oldest returns the oldest surviving timestamp, if any.
	Oldest(ctx context.Context, key string) (time.Time, bool, error)
	// Record appends a timestamp and refreshes the key's TTL.
	Record(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

// Limiter enforces per-(subject, tier) sliding-window quotas. When the
// backing store is unreachable it fails open: the request is allowed
// and a degraded-mode signal is emitted, because availability of the
// submission path wins over enforcement exactness.
type Limiter struct {
	windows WindowStore
	logger  *slog.Logger
	now     func() time.Time
}

func New(windows WindowStore, logger *slog.Logger) *Limiter {
	return &Limiter{windows: windows, logger: logger, now: time.Now}
}

func key(subject string, t tier.Tier) string {
	return fmt.Sprintf("scanq:rl:%s:%s", subject, t)
}

// Check runs the sliding-window algorithm for one request. Unlimited
// limits allow immediately without touching the window store.
func (l *Limiter) Check(ctx context.Context, subject string, limits tier.Limits) Decision {
	if limits.RateLimit == nil {
		return Decision{Allowed: true}
	}

	limit := *limits.RateLimit
	window := limits.RateWindow
	now := l.now()
	k := key(subject, limits.Tier)

	count, err := l.windows.Purge(ctx, k, now.Add(-window))
	if err != nil {
		return l.failOpen(subject, limit, now.Add(window), err)
	}

	if count >= limit {
		resetAt := now.Add(window)
		if oldest, ok, err := l.windows.Oldest(ctx, k); err == nil && ok {
			resetAt = oldest.Add(window)
		}
		return Decision{Limited: true, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	if err := l.windows.Record(ctx, k, now, window); err != nil {
		return l.failOpen(subject, limit, now.Add(window), err)
	}

	return Decision{
		Allowed:   true,
		Limited:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		ResetAt:   now.Add(window),
	}
}

func (l *Limiter) failOpen(subject string, limit int, resetAt time.Time, err error) Decision {
	metrics.RecordRateLimitDegraded()
	if l.logger != nil {
		l.logger.Warn("rate_limit_degraded", "subject", subject, "error", err)
	}
	return Decision{Allowed: true, Limited: true, Limit: limit, Remaining: limit, ResetAt: resetAt, Degraded: true}
}
