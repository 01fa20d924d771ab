package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// Domain separation tags for the two nullifier layers. The primary
// nullifier is claim-scoped; the domain nullifier additionally binds the
// pool instance so the same credential can participate in unrelated pools
// without linkage.
const (
	nullifierTag       = "truthforge/nullifier/v1"
	domainNullifierTag = "truthforge/domain-nullifier/v1"
)

// DeriveNullifier derives the one-time-use nullifier for a voter's
// participation on a claim. The same (credential, claim, voter) triple
// always derives the same nullifier, which is how repeat participation is
// detected without identifying the voter.
func DeriveNullifier(credential CredentialHash, claim ClaimHash, voter VoterID) Nullifier {
	h := sha3.New256()
	h.Write([]byte(nullifierTag))
	h.Write(credential[:])
	h.Write(claim[:])
	h.Write([]byte(voter))

	var n Nullifier
	copy(n[:], h.Sum(nil))
	return n
}

// DeriveDomainNullifier binds a primary nullifier to a specific pool
// instance using HKDF expansion.
func DeriveDomainNullifier(nullifier Nullifier, pool PoolID) (Nullifier, error) {
	info := make([]byte, 0, len(domainNullifierTag)+len(pool))
	info = append(info, domainNullifierTag...)
	info = append(info, pool...)

	kdf := hkdf.New(sha256.New, nullifier[:], nil, info)

	var dn Nullifier
	if _, err := io.ReadFull(kdf, dn[:]); err != nil {
		return dn, err
	}
	return dn, nil
}
