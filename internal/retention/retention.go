package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scanq/internal/config"
	"scanq/internal/metrics"
	"scanq/internal/store"
	"scanq/internal/tier"
)

// Store is the persistence port the sweeper needs.
type Store interface {
	ListAccounts(ctx context.Context) ([]store.Account, error)
	DeleteScansBefore(ctx context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error)
	CountScansSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
}

// Stats captures one sweep's deletions per tier.
type Stats struct {
	ScansDeleted map[string]int64 `json:"scansDeleted"`
	Errors       int              `json:"errors"`
}

// Sweeper deletes scans older than each owner's tier retention horizon
// so the database does not grow without bound. Unlimited tiers are
// never touched.
type Sweeper struct {
	store  Store
	tiers  *tier.Registry
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(st Store, tiers *tier.Registry, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: st, tiers: tiers, logger: logger, now: time.Now}
}

// SweepAccount removes one owner's expired scans. A nil cutoff from an
// unlimited tier deletes nothing.
func (s *Sweeper) SweepAccount(ctx context.Context, acct store.Account) (int64, error) {
	limits := s.tiers.Limits(tier.Normalize(acct.Tier), acct.Email)
	cutoff, ok := limits.Horizon(s.now().UTC())
	if !ok {
		return 0, nil
	}
	n, err := s.store.DeleteScansBefore(ctx, acct.ID, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordRetentionScans(string(limits.Tier), n)
	}
	return n, nil
}

// SweepAll walks every account and applies its retention horizon. A
// failure for one account is logged and counted but never stops the
// sweep for the rest.
func (s *Sweeper) SweepAll(ctx context.Context) Stats {
	stats := Stats{ScansDeleted: make(map[string]int64)}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.logWarn("retention_list_accounts_failed", "error", err)
		stats.Errors++
		return stats
	}

	for _, acct := range accounts {
		n, err := s.SweepAccount(ctx, acct)
		if err != nil {
			s.logWarn("retention_sweep_failed", "owner_id", acct.ID, "error", err)
			stats.Errors++
			continue
		}
		if n > 0 {
			t := string(tier.Normalize(acct.Tier))
			stats.ScansDeleted[t] += n
			s.logInfo("retention_swept", "owner_id", acct.ID, "tier", t, "deleted", n)
		}
	}
	return stats
}

// Counts splits an owner's scans into those still inside the
// retention horizon and those that have aged past it but are not yet
// swept.
type Counts struct {
	Accessible int `json:"accessible"`
	Expired    int `json:"expired"`
}

// CountAccount reports one owner's retention counts. Unlimited tiers
// have no horizon, so everything is accessible.
func (s *Sweeper) CountAccount(ctx context.Context, acct store.Account) (Counts, error) {
	limits := s.tiers.Limits(tier.Normalize(acct.Tier), acct.Email)

	total, err := s.store.CountScansSince(ctx, acct.ID, time.Time{})
	if err != nil {
		return Counts{}, err
	}
	cutoff, ok := limits.Horizon(s.now().UTC())
	if !ok {
		return Counts{Accessible: total}, nil
	}

	accessible, err := s.store.CountScansSince(ctx, acct.ID, cutoff)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Accessible: accessible, Expired: total - accessible}, nil
}

// CountAll aggregates retention counts per tier across every account.
// Like SweepAll, a failure for one account never stops the rest.
func (s *Sweeper) CountAll(ctx context.Context) (map[string]Counts, int) {
	out := make(map[string]Counts)
	errs := 0

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.logWarn("retention_list_accounts_failed", "error", err)
		return out, 1
	}

	for _, acct := range accounts {
		counts, err := s.CountAccount(ctx, acct)
		if err != nil {
			s.logWarn("retention_count_failed", "owner_id", acct.ID, "error", err)
			errs++
			continue
		}
		t := string(tier.Normalize(acct.Tier))
		agg := out[t]
		agg.Accessible += counts.Accessible
		agg.Expired += counts.Expired
		out[t] = agg
	}
	return out, errs
}

// Start runs periodic sweeps until ctx is cancelled. The first sweep
// happens one full interval after startup.
func (s *Sweeper) Start(ctx context.Context, cfg config.RetentionConfig) {
	if !cfg.Enabled {
		return
	}
	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

func (s *Sweeper) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Sweeper) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
