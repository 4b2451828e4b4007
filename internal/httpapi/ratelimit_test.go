package httpapi

import (
	"testing"
	"time"

	"incident-portal/internal/config"
)

func TestIPRateLimiter_PerIPBuckets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(config.RateLimitSettings{SubmissionsPerMinute: 6, Burst: 2}).
		WithClock(func() time.Time { return now })

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("expected third request to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatalf("expected other ip to have its own bucket")
	}

	// 6/min refills one token every 10s.
	now = now.Add(10 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Fatalf("expected token after refill interval")
	}
}

func TestIPRateLimiter_EvictsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(config.RateLimitSettings{SubmissionsPerMinute: 1, Burst: 1}).
		WithClock(func() time.Time { return now })

	l.Allow("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Minute)
	l.Allow("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.visitors["10.0.0.1"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
	if len(l.visitors) != 1 {
		t.Fatalf("expected 1 visitor, got %d", len(l.visitors))
	}
}

func TestIPRateLimiter_DisabledWhenRateUnset(t *testing.T) {
	l := NewIPRateLimiter(config.RateLimitSettings{})
	for i := 0; i < 100; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}
