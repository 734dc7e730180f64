package ratelimit

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RateLimiter checks whether a request identified by an Identity id may
// proceed, per spec §4.3's token-bucket semantics.
type RateLimiter interface {
	// Check consumes one token from id's bucket, creating it lazily on
	// first use. customRPS, if non-nil, overrides Config.DefaultRPS for
	// this identity and also drives the burst computed for a newly
	// created bucket. Check never suspends.
	Check(ctx context.Context, id string, customRPS *float64) (Result, error)
}

type bucket struct {
	rps        float64
	burst      int
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is the concurrent-map-backed RateLimiter. The identity space is
// sharded to keep contention on one hot identity from blocking checks for
// every other identity.
type Limiter struct {
	cfg    Config
	shards []*shard
	mask   uint64
	now    func() time.Time
}

// NewLimiter builds a Limiter with cfg. Shard count is the next power of
// two at or above GOMAXPROCS, capped at 64.
func NewLimiter(cfg Config) *Limiter {
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = DefaultEntryTTL
	}
	if cfg.CleanupThreshold <= 0 {
		cfg.CleanupThreshold = DefaultCleanupThreshold
	}
	n := nextPow2(runtime.GOMAXPROCS(0))
	if n > 64 {
		n = 64
	}
	if n < 1 {
		n = 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return &Limiter{cfg: cfg, shards: shards, mask: uint64(n - 1), now: time.Now}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (l *Limiter) shardFor(id string) *shard {
	return l.shards[xxhash.Sum64String(id)&l.mask]
}

// effectiveLimit computes (rps, burst) for an identity per §4.3: burst is
// max(1, round(limit*0.5)) when customRPS is set, otherwise the configured
// default burst.
func (l *Limiter) effectiveLimit(customRPS *float64) (rps float64, burst int) {
	if customRPS != nil {
		rps = *customRPS
		burst = int(math.Max(1, math.Round(rps*0.5)))
		return rps, burst
	}
	return l.cfg.DefaultRPS, l.cfg.DefaultBurst
}

// Check implements RateLimiter.
func (l *Limiter) Check(_ context.Context, id string, customRPS *float64) (Result, error) {
	now := l.now()
	limit, burst := l.effectiveLimit(customRPS)

	if !l.cfg.Enabled {
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: burst,
			ResetAt:   now.Add(time.Second),
		}, nil
	}

	sh := l.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[id]
	if !ok {
		if len(sh.buckets) >= l.cfg.CleanupThreshold {
			sh.sweepLocked(l.cfg.EntryTTL, now)
		}
		b = &bucket{rps: limit, burst: burst, tokens: float64(burst), lastRefill: now, lastAccess: now}
		sh.buckets[id] = b
	} else {
		b.lastAccess = now
	}

	refill(b, now)

	if b.tokens >= 1 {
		b.tokens--
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: int(math.Max(0, float64(b.burst-1))),
			ResetAt:   now.Add(time.Second),
		}, nil
	}

	deficit := 1 - b.tokens
	var retryAfter time.Duration
	if b.rps > 0 {
		secs := deficit / b.rps
		retryAfter = time.Duration(math.Ceil(secs)) * time.Second
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		RetryAfter: retryAfter,
		ResetAt:    now.Add(time.Second),
	}, nil
}

func refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(b.burst), b.tokens+elapsed*b.rps)
	b.lastRefill = now
}

// sweepLocked removes every bucket idle longer than ttl. Caller must hold
// sh.mu.
func (sh *shard) sweepLocked(ttl time.Duration, now time.Time) {
	for id, b := range sh.buckets {
		if now.Sub(b.lastAccess) > ttl {
			delete(sh.buckets, id)
		}
	}
}

// CleanupExpired removes every bucket, across every shard, idle longer than
// Config.EntryTTL. Safe to call concurrently with Check; idempotent —
// running it twice in a row is a no-op the second time.
func (l *Limiter) CleanupExpired() {
	now := l.now()
	for _, sh := range l.shards {
		sh.mu.Lock()
		sh.sweepLocked(l.cfg.EntryTTL, now)
		sh.mu.Unlock()
	}
}

// TrackedIdentities returns the total number of live buckets across every
// shard. Intended for tests and introspection, not the request path.
func (l *Limiter) TrackedIdentities() int {
	n := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}
