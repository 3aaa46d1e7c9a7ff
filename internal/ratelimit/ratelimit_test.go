package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"scanq/internal/tier"
)

func finiteLimits(limit int, window time.Duration) tier.Limits {
	return tier.Limits{Tier: tier.Free, RateLimit: &limit, RateWindow: window}
}

func TestSlidingWindowDeniesAtLimit(t *testing.T) {
	l := New(NewMemoryWindows(), nil)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limits := finiteLimits(100, time.Hour)

	for i := 0; i < 100; i++ {
		l.now = func() time.Time { return t0.Add(time.Duration(i) * time.Second) }
		d := l.Check(context.Background(), "acct-1", limits)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if d.Remaining != 100-i-1 {
			t.Fatalf("request %d remaining = %d, want %d", i+1, d.Remaining, 100-i-1)
		}
	}

	l.now = func() time.Time { return t0.Add(100 * time.Second) }
	d := l.Check(context.Background(), "acct-1", limits)
	if d.Allowed {
		t.Fatal("request 101 inside the window should be denied")
	}
	if d.Remaining != 0 {
		t.Fatalf("denied remaining = %d, want 0", d.Remaining)
	}
	// Reset is when the oldest surviving request ages out.
	if want := t0.Add(time.Hour); !d.ResetAt.Equal(want) {
		t.Fatalf("resetAt = %v, want %v", d.ResetAt, want)
	}
}

func TestSlidingWindowRecoversAfterWindow(t *testing.T) {
	l := New(NewMemoryWindows(), nil)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limits := finiteLimits(2, time.Minute)

	l.now = func() time.Time { return t0 }
	l.Check(context.Background(), "acct-1", limits)
	l.Check(context.Background(), "acct-1", limits)
	if d := l.Check(context.Background(), "acct-1", limits); d.Allowed {
		t.Fatal("third request inside window should be denied")
	}

	l.now = func() time.Time { return t0.Add(time.Minute + time.Second) }
	if d := l.Check(context.Background(), "acct-1", limits); !d.Allowed {
		t.Fatal("request after window elapsed should be allowed")
	}
}

func TestWindowBoundaryEntrySurvives(t *testing.T) {
	l := New(NewMemoryWindows(), nil)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limits := finiteLimits(1, time.Minute)

	l.now = func() time.Time { return t0 }
	if d := l.Check(context.Background(), "acct-1", limits); !d.Allowed {
		t.Fatal("first request should be allowed")
	}

	// Exactly one window later the original entry is not yet older
	// than the window, so it still counts.
	l.now = func() time.Time { return t0.Add(time.Minute) }
	if d := l.Check(context.Background(), "acct-1", limits); d.Allowed {
		t.Fatal("request exactly at the window boundary should be denied")
	}

	l.now = func() time.Time { return t0.Add(time.Minute + time.Nanosecond) }
	if d := l.Check(context.Background(), "acct-1", limits); !d.Allowed {
		t.Fatal("request just past the window boundary should be allowed")
	}
}

func TestUnlimitedTierNeverTouchesStore(t *testing.T) {
	store := &countingStore{}
	l := New(store, nil)

	d := l.Check(context.Background(), "acct-1", tier.Limits{Tier: tier.Enterprise})
	if !d.Allowed || d.Limited {
		t.Fatalf("unlimited decision = %+v", d)
	}
	if store.calls != 0 {
		t.Fatalf("store touched %d times for unlimited tier", store.calls)
	}
}

func TestWindowsAreIndependentPerSubject(t *testing.T) {
	l := New(NewMemoryWindows(), nil)
	limits := finiteLimits(1, time.Hour)

	if d := l.Check(context.Background(), "acct-1", limits); !d.Allowed {
		t.Fatal("first subject should be allowed")
	}
	if d := l.Check(context.Background(), "acct-2", limits); !d.Allowed {
		t.Fatal("second subject has its own window")
	}
	if d := l.Check(context.Background(), "acct-1", limits); d.Allowed {
		t.Fatal("first subject should now be over limit")
	}
}

func TestFailOpenWhenStoreUnavailable(t *testing.T) {
	l := New(&failingStore{}, nil)
	limits := finiteLimits(5, time.Hour)

	d := l.Check(context.Background(), "acct-1", limits)
	if !d.Allowed {
		t.Fatal("limiter must fail open when the store is unreachable")
	}
	if !d.Degraded {
		t.Fatal("degraded flag should be set on fail-open")
	}
}

type countingStore struct{ calls int }

func (s *countingStore) Purge(context.Context, string, time.Time) (int, error) {
	s.calls++
	return 0, nil
}

func (s *countingStore) Oldest(context.Context, string) (time.Time, bool, error) {
	s.calls++
	return time.Time{}, false, nil
}

func (s *countingStore) Record(context.Context, string, time.Time, time.Duration) error {
	s.calls++
	return nil
}

type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Purge(context.Context, string, time.Time) (int, error) { return 0, errDown }
func (failingStore) Oldest(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errDown
}
func (failingStore) Record(context.Context, string, time.Time, time.Duration) error {
	return errDown
}
