package services

import (
	"sync"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/scoring"
)

// OpenValidator accepts every well-formed credential. The engine still
// range-checks tier and relevance; this validator adds no further
// restriction. Suitable for development and closed test networks.
type OpenValidator struct{}

// Validate always accepts.
func (OpenValidator) Validate(crypto.CredentialHash, crypto.ClaimHash, scoring.Tier, int64) bool {
	return true
}

// AllowlistValidator accepts only credentials whose hashes were
// explicitly admitted, with an optional per-credential tier cap. It
// stands in for a real zero-knowledge verifier: the issuer admits a
// credential hash once, and the validator attests membership from then
// on.
type AllowlistValidator struct {
	mu      sync.RWMutex
	maxTier map[crypto.CredentialHash]scoring.Tier
	revoked map[crypto.CredentialHash]struct{}
}

// NewAllowlistValidator creates an empty allowlist.
func NewAllowlistValidator() *AllowlistValidator {
	return &AllowlistValidator{
		maxTier: make(map[crypto.CredentialHash]scoring.Tier),
		revoked: make(map[crypto.CredentialHash]struct{}),
	}
}

// Admit registers a credential hash with the highest tier it may claim.
func (v *AllowlistValidator) Admit(credential crypto.CredentialHash, maxTier scoring.Tier) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxTier[credential] = maxTier
	delete(v.revoked, credential)
}

// Revoke removes a credential. Nullifiers already consumed stay
// consumed; revocation only blocks future participation.
func (v *AllowlistValidator) Revoke(credential crypto.CredentialHash) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.maxTier, credential)
	v.revoked[credential] = struct{}{}
}

// Validate accepts admitted, unrevoked credentials claiming at most
// their admitted tier.
func (v *AllowlistValidator) Validate(credential crypto.CredentialHash, _ crypto.ClaimHash,
	tier scoring.Tier, _ int64) bool {

	v.mu.RLock()
	defer v.mu.RUnlock()

	if _, gone := v.revoked[credential]; gone {
		return false
	}
	maxTier, ok := v.maxTier[credential]
	return ok && tier <= maxTier
}
