package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	l := NewLimiter(cfg)
	fc := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = fc.Now
	return l, fc
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestCheckDisabledAlwaysAllows(t *testing.T) {
	l, _ := newTestLimiter(Config{Enabled: false, DefaultRPS: 1, DefaultBurst: 2})
	res, err := l.Check(context.Background(), "id", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("expected disabled limiter to allow with full burst, got %+v", res)
	}
}

func TestCheckBurstThenDeny(t *testing.T) {
	l, fc := newTestLimiter(Config{Enabled: true, DefaultRPS: 1, DefaultBurst: 2})
	_ = fc

	r1, _ := l.Check(context.Background(), "id", nil)
	r2, _ := l.Check(context.Background(), "id", nil)
	r3, _ := l.Check(context.Background(), "id", nil)

	if !r1.Allowed || !r2.Allowed {
		t.Fatalf("expected first two requests within burst to be allowed: %+v %+v", r1, r2)
	}
	if r3.Allowed {
		t.Fatalf("expected third request to exceed burst of 2: %+v", r3)
	}
	if r3.RetryAfter < time.Second {
		t.Fatalf("expected RetryAfter >= 1s, got %v", r3.RetryAfter)
	}
}

func TestCheckRefillsOverTime(t *testing.T) {
	l, fc := newTestLimiter(Config{Enabled: true, DefaultRPS: 1, DefaultBurst: 1})

	r1, _ := l.Check(context.Background(), "id", nil)
	if !r1.Allowed {
		t.Fatalf("expected first request allowed")
	}
	r2, _ := l.Check(context.Background(), "id", nil)
	if r2.Allowed {
		t.Fatalf("expected second immediate request denied")
	}

	fc.Advance(time.Second)
	r3, _ := l.Check(context.Background(), "id", nil)
	if !r3.Allowed {
		t.Fatalf("expected request after refill window to be allowed")
	}
}

func TestCustomRPSDerivesBurst(t *testing.T) {
	l, _ := newTestLimiter(Config{Enabled: true, DefaultRPS: 1, DefaultBurst: 1})
	custom := 10.0
	res, _ := l.Check(context.Background(), "premium", &custom)
	if res.Limit != 10 {
		t.Fatalf("expected limit 10, got %v", res.Limit)
	}
	// burst = max(1, round(10*0.5)) = 5, so remaining after first consume is 4.
	if res.Remaining != 4 {
		t.Fatalf("expected remaining 4 (burst 5 minus 1), got %d", res.Remaining)
	}
}

func TestRateLimitIsolationBetweenIdentities(t *testing.T) {
	l, _ := newTestLimiter(Config{Enabled: true, DefaultRPS: 1, DefaultBurst: 1})

	ra, _ := l.Check(context.Background(), "a", nil)
	ra2, _ := l.Check(context.Background(), "a", nil)
	if !ra.Allowed || ra2.Allowed {
		t.Fatalf("expected identity a to exhaust its own bucket: %+v %+v", ra, ra2)
	}

	rb, _ := l.Check(context.Background(), "b", nil)
	if !rb.Allowed {
		t.Fatalf("exhausting a's bucket must not affect b's decision: %+v", rb)
	}
}

func TestCleanupExpiredRemovesStaleEntriesAndIsIdempotent(t *testing.T) {
	l, fc := newTestLimiter(Config{Enabled: true, DefaultRPS: 1, DefaultBurst: 1, EntryTTL: time.Hour})

	for _, id := range []string{"a", "b", "c"} {
		if _, err := l.Check(context.Background(), id, nil); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if got := l.TrackedIdentities(); got != 3 {
		t.Fatalf("expected 3 tracked identities, got %d", got)
	}

	fc.Advance(2 * time.Hour)
	l.CleanupExpired()
	if got := l.TrackedIdentities(); got != 0 {
		t.Fatalf("expected 0 tracked identities after sweep past TTL, got %d", got)
	}

	l.CleanupExpired()
	if got := l.TrackedIdentities(); got != 0 {
		t.Fatalf("re-running CleanupExpired must be a no-op, got %d", got)
	}
}

func TestConcurrentCheckSameIdentityIsRaceFree(t *testing.T) {
	l, _ := newTestLimiter(Config{Enabled: true, DefaultRPS: 100, DefaultBurst: 100})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Check(context.Background(), "shared", nil)
		}()
	}
	wg.Wait()
}
