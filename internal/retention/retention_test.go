package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"scanq/internal/config"
	"scanq/internal/store"
	"scanq/internal/tier"
)

type fakeStore struct {
	accounts []store.Account
	// scans maps owner to created_at timestamps still present.
	scans   map[uuid.UUID][]time.Time
	failFor map[uuid.UUID]error
	deletes map[uuid.UUID]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scans:   make(map[uuid.UUID][]time.Time),
		failFor: make(map[uuid.UUID]error),
		deletes: make(map[uuid.UUID]time.Time),
	}
}

func (s *fakeStore) ListAccounts(context.Context) ([]store.Account, error) {
	return s.accounts, nil
}

func (s *fakeStore) DeleteScansBefore(_ context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error) {
	if err := s.failFor[ownerID]; err != nil {
		return 0, err
	}
	s.deletes[ownerID] = cutoff

	var kept []time.Time
	var deleted int64
	for _, created := range s.scans[ownerID] {
		if created.Before(cutoff) {
			deleted++
		} else {
			kept = append(kept, created)
		}
	}
	s.scans[ownerID] = kept
	return deleted, nil
}

func (s *fakeStore) CountScansSince(_ context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	if err := s.failFor[ownerID]; err != nil {
		return 0, err
	}
	n := 0
	for _, created := range s.scans[ownerID] {
		if !created.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) addAccount(email, tierName string) store.Account {
	acct := store.Account{ID: uuid.New(), Email: email, Tier: tierName}
	s.accounts = append(s.accounts, acct)
	return acct
}

func TestSweepRespectsTierHorizons(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	free := st.addAccount("free@example.com", "free")
	ent := st.addAccount("ent@example.com", "enterprise")

	// One scan inside the free horizon, one past it.
	st.scans[free.ID] = []time.Time{
		now.AddDate(0, 0, -31),
		now.AddDate(0, 0, -5),
	}
	// Enterprise has no horizon, so even very old scans survive.
	st.scans[ent.ID] = []time.Time{now.AddDate(0, 0, -400)}

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	stats := sw.SweepAll(context.Background())

	if stats.Errors != 0 {
		t.Fatalf("errors = %d, want 0", stats.Errors)
	}
	if got := stats.ScansDeleted["free"]; got != 1 {
		t.Errorf("free deletions = %d, want 1", got)
	}
	if len(st.scans[free.ID]) != 1 {
		t.Errorf("free account kept %d scans, want 1", len(st.scans[free.ID]))
	}
	if len(st.scans[ent.ID]) != 1 {
		t.Errorf("enterprise scans swept; unlimited tier must never be touched")
	}
	if _, touched := st.deletes[ent.ID]; touched {
		t.Error("delete issued for an unlimited tier")
	}
}

func TestSweepBypassEmailGetsEnterpriseHorizon(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	acct := st.addAccount("founder@example.com", "free")
	st.scans[acct.ID] = []time.Time{now.AddDate(0, 0, -400)}

	reg := tier.NewRegistry(config.TiersConfig{BypassEmails: []string{"Founder@Example.com"}})
	sw := NewSweeper(st, reg, nil)
	sw.SweepAll(context.Background())

	if len(st.scans[acct.ID]) != 1 {
		t.Fatal("bypass subject's scans were swept under the free horizon")
	}
}

func TestSweepIsolatesPerAccountFailures(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	broken := st.addAccount("broken@example.com", "free")
	healthy := st.addAccount("healthy@example.com", "free")

	st.failFor[broken.ID] = errors.New("deadlock detected")
	st.scans[healthy.ID] = []time.Time{now.AddDate(0, 0, -60)}

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	stats := sw.SweepAll(context.Background())

	if stats.Errors != 1 {
		t.Fatalf("errors = %d, want 1", stats.Errors)
	}
	if got := stats.ScansDeleted["free"]; got != 1 {
		t.Errorf("healthy account not swept after another account failed: deleted = %d", got)
	}
}

func TestCountAccountSplitsOnHorizon(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	free := st.addAccount("free@example.com", "free")
	st.scans[free.ID] = []time.Time{
		now.AddDate(0, 0, -31),
		now.AddDate(0, 0, -40),
		now.AddDate(0, 0, -5),
	}

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	counts, err := sw.CountAccount(context.Background(), free)
	if err != nil {
		t.Fatalf("CountAccount: %v", err)
	}
	if counts.Accessible != 1 || counts.Expired != 2 {
		t.Fatalf("counts = %+v, want 1 accessible / 2 expired", counts)
	}
}

func TestCountAccountUnlimitedTier(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	ent := st.addAccount("ent@example.com", "enterprise")
	st.scans[ent.ID] = []time.Time{now.AddDate(0, 0, -400), now}

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	counts, err := sw.CountAccount(context.Background(), ent)
	if err != nil {
		t.Fatalf("CountAccount: %v", err)
	}
	if counts.Accessible != 2 || counts.Expired != 0 {
		t.Fatalf("counts = %+v, want everything accessible with no horizon", counts)
	}
}

func TestCountAllAggregatesPerTier(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()

	a := st.addAccount("a@example.com", "free")
	b := st.addAccount("b@example.com", "free")
	broken := st.addAccount("broken@example.com", "premium")

	st.scans[a.ID] = []time.Time{now.AddDate(0, 0, -31)}
	st.scans[b.ID] = []time.Time{now.AddDate(0, 0, -5)}
	st.failFor[broken.ID] = errors.New("deadlock detected")

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	counts, errs := sw.CountAll(context.Background())

	if errs != 1 {
		t.Fatalf("errs = %d, want 1", errs)
	}
	free := counts["free"]
	if free.Accessible != 1 || free.Expired != 1 {
		t.Fatalf("free counts = %+v, want 1/1", free)
	}
}

func TestSweepAccountCutoff(t *testing.T) {
	st := newFakeStore()
	acct := st.addAccount("p@example.com", "premium")

	sw := NewSweeper(st, tier.NewRegistry(config.TiersConfig{}), nil)
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sw.now = func() time.Time { return fixed }

	if _, err := sw.SweepAccount(context.Background(), acct); err != nil {
		t.Fatalf("SweepAccount: %v", err)
	}
	want := fixed.AddDate(0, 0, -365)
	if got := st.deletes[acct.ID]; !got.Equal(want) {
		t.Errorf("cutoff = %v, want %v", got, want)
	}
}
