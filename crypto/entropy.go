package crypto

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// entropyTag domain-separates bias entropy from every other hash use in
// the protocol. Changing it changes every bias score; treat it as part of
// the consensus rules.
const entropyTag = "truthforge/bias-entropy/v1"

// DeriveEntropy derives a uniformly distributed integer in [0, domain)
// from the identifying inputs of a (voter, claim) pair.
//
// The derivation is pure: identical inputs always produce the identical
// output, regardless of when or where it is evaluated. It reads no clock,
// no ordering and no other externally mutable state, which is what makes
// the resulting bias score manipulation-resistant. Output quality depends
// only on input entropy, which is the caller's responsibility.
func DeriveEntropy(credential CredentialHash, claim ClaimHash, voter VoterID, pool PoolID, domain uint64) uint64 {
	h := sha3.New256()
	h.Write([]byte(entropyTag))
	h.Write(credential[:])
	h.Write(claim[:])
	h.Write([]byte(voter))
	h.Write([]byte(pool))
	digest := h.Sum(nil)

	// The digest is 256 bits; reducing modulo a small domain keeps the
	// modulo bias negligible.
	u := new(big.Int).SetBytes(digest)
	u.Mod(u, new(big.Int).SetUint64(domain))
	return u.Uint64()
}
