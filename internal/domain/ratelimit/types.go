// Package ratelimit implements the per-identity token-bucket rate limiter:
// one bucket per Identity id, shared by reference across all concurrent
// requests for that id, with lazy allocation and TTL-based eviction.
package ratelimit

import "time"

// Config holds the limiter's defaults. Every field is set once at
// construction; individual Check calls may override the effective rps via
// customRPS but never mutate Config itself.
type Config struct {
	// Enabled gates the limiter. When false, Check always allows and skips
	// bucket bookkeeping entirely.
	Enabled bool

	// DefaultRPS is the refill rate used when a caller doesn't supply a
	// per-identity override.
	DefaultRPS float64

	// DefaultBurst is the bucket capacity used when a caller doesn't supply
	// a per-identity override.
	DefaultBurst int

	// EntryTTL is how long a bucket may sit idle before the sweep removes
	// it. Zero means the default of one hour.
	EntryTTL time.Duration

	// CleanupThreshold is the shard entry count at or above which a Check
	// opportunistically runs the sweep for its shard before inserting a new
	// bucket. Zero means the default of 1000.
	CleanupThreshold int
}

const (
	// DefaultEntryTTL is used when Config.EntryTTL is zero.
	DefaultEntryTTL = time.Hour
	// DefaultCleanupThreshold is used when Config.CleanupThreshold is zero.
	DefaultCleanupThreshold = 1000
)

// Result is the outcome of one Check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the effective requests-per-second used for this check
	// (either the identity's override or the configured default).
	Limit float64

	// Remaining is an approximation of tokens left in the bucket after
	// this check. Concurrent callers on the same bucket may observe
	// overlapping values; only 0 <= Remaining <= burst is guaranteed.
	Remaining int

	// RetryAfter is how long to wait before the next token is likely
	// available. Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAt is when the current one-second accounting window resets.
	ResetAt time.Time
}
