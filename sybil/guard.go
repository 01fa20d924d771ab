package sybil

import (
	"context"
	"log/slog"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
)

// Guard combines the nullifier registry with a per-voter rate limit.
// The consensus engine consults it before any dependent mutation: a vote
// whose nullifiers cannot be consumed never touches ledger state.
type Guard struct {
	registry Registry
	limiter  RateLimiter
	log      *slog.Logger
}

// NewGuard creates a sybil guard over the given registry and limiter.
func NewGuard(registry Registry, limiter RateLimiter, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		registry: registry,
		limiter:  limiter,
		log:      log.With("component", "sybil-guard"),
	}
}

// Derive computes the primary and domain-bound nullifiers for a
// participation attempt.
func (g *Guard) Derive(credential crypto.CredentialHash, claim crypto.ClaimHash,
	voter crypto.VoterID, pool crypto.PoolID) (crypto.Nullifier, crypto.Nullifier, error) {

	nullifier := crypto.DeriveNullifier(credential, claim, voter)
	domainNullifier, err := crypto.DeriveDomainNullifier(nullifier, pool)
	if err != nil {
		return crypto.Nullifier{}, crypto.Nullifier{}, err
	}
	return nullifier, domainNullifier, nil
}

// Admit enforces the sliding-window rate limit for the voter. It is
// independent of nullifier state: even a first-time voter can be refused
// when hammering the service.
func (g *Guard) Admit(ctx context.Context, voter crypto.VoterID, now time.Time) error {
	if err := g.limiter.Allow(ctx, voter, now); err != nil {
		g.log.Warn("voter rate limited", "voter", string(voter))
		return err
	}
	return nil
}

// Consume atomically marks both nullifiers as used. Returns ErrReplay if
// either was already consumed; in that case neither is marked.
func (g *Guard) Consume(nullifier, domainNullifier crypto.Nullifier) error {
	if err := g.registry.Register(nullifier, domainNullifier); err != nil {
		g.log.Warn("nullifier replay rejected", "nullifier", nullifier.String())
		return err
	}
	return nil
}

// Seen reports whether a nullifier has been consumed. Read-only; used by
// status endpoints.
func (g *Guard) Seen(n crypto.Nullifier) bool {
	return g.registry.Contains(n)
}
