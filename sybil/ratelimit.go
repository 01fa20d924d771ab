package sybil

import (
	"context"
	"sync"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
)

// RateLimiter bounds per-voter operation frequency independently of
// nullifier state. Time is an explicit input so the limiter stays
// deterministic under simulated clocks.
type RateLimiter interface {
	// Allow records one operation for the voter at the given instant,
	// returning ErrRateLimited if the voter already performed the maximum
	// number of operations within the window.
	Allow(ctx context.Context, voter crypto.VoterID, now time.Time) error
}

// WindowConfig describes a sliding-window rate limit.
type WindowConfig struct {
	// Window is the sliding window length.
	Window time.Duration

	// MaxOps is the maximum number of operations per voter per window.
	MaxOps int
}

// MemoryLimiter is an in-process sliding-window rate limiter.
type MemoryLimiter struct {
	config WindowConfig

	mu      sync.Mutex
	history map[crypto.VoterID][]time.Time
}

// NewMemoryLimiter creates a sliding-window limiter with the given config.
func NewMemoryLimiter(config WindowConfig) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config,
		history: make(map[crypto.VoterID][]time.Time),
	}
}

// Allow records one operation for the voter, pruning entries older than
// the window first.
func (l *MemoryLimiter) Allow(_ context.Context, voter crypto.VoterID, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.config.Window)
	recent := l.history[voter][:0]
	for _, ts := range l.history[voter] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.config.MaxOps {
		l.history[voter] = recent
		return ErrRateLimited
	}

	l.history[voter] = append(recent, now)
	return nil
}

// NopLimiter never limits. Used when rate limiting is disabled.
type NopLimiter struct{}

// Allow always permits the operation.
func (NopLimiter) Allow(context.Context, crypto.VoterID, time.Time) error {
	return nil
}
