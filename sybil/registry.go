package sybil

import (
	"errors"
	"sync"

	"github.com/DBYGuy/truthforge/crypto"
)

// ErrReplay is returned when a nullifier (primary or domain-bound) has
// already been consumed. A replayed nullifier means the same credential
// already voted on this claim.
var ErrReplay = errors.New("nullifier already consumed")

// ErrRateLimited is returned when a voter exceeds the sliding-window
// participation limit. Retrying after the window drains is the caller's
// concern; the guard never retries internally.
var ErrRateLimited = errors.New("participation rate limit exceeded")

// Registry records consumed nullifiers. Entries are permanent: there is
// deliberately no way to remove one, because releasing a nullifier would
// let a credential vote twice.
type Registry interface {
	// Register consumes both nullifiers atomically. If either is already
	// present, neither is consumed and ErrReplay is returned.
	Register(nullifier, domainNullifier crypto.Nullifier) error

	// Contains reports whether a nullifier has been consumed.
	Contains(n crypto.Nullifier) bool
}

// MemoryRegistry is the in-process Registry used by default and in tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	consumed map[crypto.Nullifier]struct{}
}

// NewMemoryRegistry creates an empty in-memory nullifier registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		consumed: make(map[crypto.Nullifier]struct{}),
	}
}

// Register consumes both nullifiers atomically under one lock. Both marks
// land before the method returns, so a reentrant caller cannot observe a
// half-registered pair.
func (r *MemoryRegistry) Register(nullifier, domainNullifier crypto.Nullifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumed[nullifier]; ok {
		return ErrReplay
	}
	if _, ok := r.consumed[domainNullifier]; ok {
		return ErrReplay
	}

	r.consumed[nullifier] = struct{}{}
	r.consumed[domainNullifier] = struct{}{}
	return nil
}

// Contains reports whether a nullifier has been consumed.
func (r *MemoryRegistry) Contains(n crypto.Nullifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.consumed[n]
	return ok
}

// Size returns the number of consumed nullifier entries.
func (r *MemoryRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consumed)
}
