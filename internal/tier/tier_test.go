package tier

import (
	"testing"
	"time"

	"scanq/internal/config"
)

func TestNormalize(t *testing.T) {
	cases := map[string]Tier{
		"free":        Free,
		"Premium":     Premium,
		" ENTERPRISE": Enterprise,
		"gold":        Free,
		"":            Free,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPaidLane(t *testing.T) {
	if Free.Paid() {
		t.Error("free tier should not be paid")
	}
	if !Premium.Paid() || !Enterprise.Paid() {
		t.Error("premium and enterprise should be paid")
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(config.TiersConfig{})

	free := r.Limits(Free, "")
	if free.RateLimit == nil || *free.RateLimit != 100 {
		t.Fatalf("free rate limit = %v, want 100", free.RateLimit)
	}
	if free.RateWindow != time.Hour {
		t.Fatalf("free rate window = %v, want 1h", free.RateWindow)
	}
	if free.ModeAllowed("full") {
		t.Error("free tier should not allow full mode")
	}
	if !free.ModeAllowed("fast") {
		t.Error("free tier should allow fast mode")
	}

	ent := r.Limits(Enterprise, "")
	if ent.RateLimit != nil {
		t.Error("enterprise should have unlimited rate")
	}
	if _, bounded := ent.Horizon(time.Now()); bounded {
		t.Error("enterprise should have no retention horizon")
	}
}

func TestRegistryOverrides(t *testing.T) {
	r := NewRegistry(config.TiersConfig{
		Free: config.TierConfig{RateLimit: 10, RateWindowSecs: 60, RetentionDays: 7},
	})
	free := r.Limits(Free, "")
	if *free.RateLimit != 10 || free.RateWindow != time.Minute {
		t.Fatalf("override not applied: %+v", free)
	}
	cutoff, bounded := free.Horizon(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC))
	if !bounded || !cutoff.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("horizon = %v bounded=%v", cutoff, bounded)
	}
}

func TestBypassSubjectsGetEnterpriseLimits(t *testing.T) {
	r := NewRegistry(config.TiersConfig{BypassEmails: []string{"Owner@Example.com"}})

	if !r.Bypass("owner@example.com") {
		t.Fatal("bypass match should be case-insensitive")
	}
	l := r.Limits(Free, "OWNER@example.COM")
	if l.Tier != Enterprise {
		t.Fatalf("bypass subject limits = %q, want enterprise", l.Tier)
	}
	if !l.ModeAllowed("custom") {
		t.Error("bypass subject should get every mode")
	}
}
