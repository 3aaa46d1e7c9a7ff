package admission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"scanq/internal/config"
	"scanq/internal/ratelimit"
	"scanq/internal/tier"
)

func newController(t *testing.T, usage UsageCounter) *Controller {
	t.Helper()
	tiers := tier.NewRegistry(config.TiersConfig{BypassEmails: []string{"owner@scanq.dev"}})
	limiter := ratelimit.New(ratelimit.NewMemoryWindows(), nil)
	return NewController(tiers, limiter, usage, nil)
}

func freeSubject() Subject {
	return Subject{ID: uuid.New(), Email: "user@example.com", Tier: tier.Free}
}

func TestModeDeniedBeforeQuota(t *testing.T) {
	c := newController(t, nil)
	sub := freeSubject()

	_, err := c.CheckAccess(context.Background(), sub, "aggressive")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Kind != DeniedMode {
		t.Fatalf("kind = %q, want mode", denied.Kind)
	}
	// Reason names the tier and lists the allowed modes.
	for _, want := range []string{"free", "common", "fast", "aggressive"} {
		if !strings.Contains(denied.Reason, want) {
			t.Fatalf("reason %q should mention %q", denied.Reason, want)
		}
	}
}

func TestQuotaDenialAfterLimit(t *testing.T) {
	tiers := tier.NewRegistry(config.TiersConfig{
		Free: config.TierConfig{RateLimit: 2, RateWindowSecs: 3600},
	})
	limiter := ratelimit.New(ratelimit.NewMemoryWindows(), nil)
	c := NewController(tiers, limiter, nil, nil)
	sub := freeSubject()

	for i := 0; i < 2; i++ {
		if _, err := c.CheckAccess(context.Background(), sub, "fast"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	d, err := c.CheckAccess(context.Background(), sub, "fast")
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Kind != DeniedQuota {
		t.Fatalf("expected quota denial, got %v", err)
	}
	if d.Remaining != 0 || d.Limit != 2 {
		t.Fatalf("denied decision = %+v", d)
	}
	if d.ResetAt.IsZero() {
		t.Fatal("denied decision should carry a reset time")
	}
}

func TestBypassSubjectAlwaysAdmitted(t *testing.T) {
	c := newController(t, failCounter{})
	sub := Subject{ID: uuid.New(), Email: "owner@scanq.dev", Tier: tier.Free}

	for i := 0; i < 500; i++ {
		d, err := c.CheckAccess(context.Background(), sub, "custom")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if d.Limited {
			t.Fatal("bypass subject decision must not carry header values")
		}
	}
}

func TestDailyCapDenied(t *testing.T) {
	c := newController(t, fixedCounter(5))
	sub := freeSubject()

	_, err := c.CheckAccess(context.Background(), sub, "fast")
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Kind != DeniedDaily {
		t.Fatalf("expected daily cap denial, got %v", err)
	}
}

func TestDailyCapFailsOpenOnCounterError(t *testing.T) {
	c := newController(t, failCounter{})
	sub := freeSubject()

	if _, err := c.CheckAccess(context.Background(), sub, "fast"); err != nil {
		t.Fatalf("counter failure should admit the request, got %v", err)
	}
}

type fixedCounter int

func (f fixedCounter) CountScansSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return int(f), nil
}

type failCounter struct{}

func (failCounter) CountScansSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return 0, errors.New("db down")
}
