package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// CredentialHash is the hash of a voter's anonymous credential. The core
// never sees the credential itself; validity is attested by the injected
// proof oracle.
type CredentialHash [32]byte

// NewCredentialHashFromString creates a CredentialHash from a hex-encoded string.
func NewCredentialHashFromString(data string) (CredentialHash, error) {
	var ch CredentialHash
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return ch, err
	}
	if len(rawBytes) != len(ch) {
		return ch, errors.New("invalid credential hash length")
	}
	copy(ch[:], rawBytes)
	return ch, nil
}

// Bytes returns the credential hash as a byte slice.
func (ch CredentialHash) Bytes() []byte {
	return ch[:]
}

// String returns a hex-encoded string representation of the credential hash.
func (ch CredentialHash) String() string {
	return hex.EncodeToString(ch[:])
}

// ClaimHash is the content fingerprint of the claim being labeled. It binds
// votes, nullifiers and pools to one specific claim.
type ClaimHash [32]byte

// NewClaimHashFromString creates a ClaimHash from a hex-encoded string.
func NewClaimHashFromString(data string) (ClaimHash, error) {
	var ch ClaimHash
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return ch, err
	}
	if len(rawBytes) != len(ch) {
		return ch, errors.New("invalid claim hash length")
	}
	copy(ch[:], rawBytes)
	return ch, nil
}

// Bytes returns the claim hash as a byte slice.
func (ch ClaimHash) Bytes() []byte {
	return ch[:]
}

// String returns a hex-encoded string representation of the claim hash.
func (ch ClaimHash) String() string {
	return hex.EncodeToString(ch[:])
}

// VoterID identifies a voter within the protocol. It is an opaque
// identifier; anonymity properties come from the credential layer, not
// from this id.
type VoterID string

// PoolID identifies a consensus pool instance. Pools are created by the
// external factory from the claim's content fingerprint.
type PoolID string

// Nullifier is a one-time-use identifier preventing a voter from voting
// twice on the same claim. Consumed nullifiers are never released.
type Nullifier [32]byte

// NewNullifierFromString creates a Nullifier from a hex-encoded string.
func NewNullifierFromString(data string) (Nullifier, error) {
	var n Nullifier
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return n, err
	}
	if len(rawBytes) != len(n) {
		return n, errors.New("invalid nullifier length")
	}
	copy(n[:], rawBytes)
	return n, nil
}

// Bytes returns the nullifier as a byte slice.
func (n Nullifier) Bytes() []byte {
	return n[:]
}

// String returns a hex-encoded string representation of the nullifier.
func (n Nullifier) String() string {
	return hex.EncodeToString(n[:])
}

// PublicKey represents an Ed25519 public key used to authenticate
// privileged protocol messages such as early-resolution signals.
type PublicKey []byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// NewPublicKeyFromString creates a PublicKey from a hex-encoded string.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKeyFromBytes(rawBytes), nil
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal compares two public keys for equality.
func (pk PublicKey) Equal(other PublicKey) bool {
	return len(pk) == len(other) && subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns a hex-encoded string representation of the public key.
// This is useful for logging, displaying to users, and using as a map key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// PrivateKey represents an Ed25519 private key used for signing
// privileged protocol messages.
type PrivateKey []byte

// NewPrivateKeyFromBytes creates a PrivateKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// Bytes returns the private key as a byte slice.
// This method should be used carefully as it exposes sensitive key material.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the public key corresponding to this private key.
// For Ed25519, the public key is contained within the private key structure.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) < ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair generates a new Ed25519 key pair for signing and verification.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(publicKey), PrivateKey(privateKey), nil
}

// Signature represents an Ed25519 signature over a protocol message.
type Signature []byte

// NewSignature creates a Signature from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewSignature(data []byte) Signature {
	sig := make([]byte, len(data))
	copy(sig, data)
	return Signature(sig)
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return []byte(s)
}

// Verify checks if this signature is valid for the given data and public key.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, s)
}

// String returns a hex-encoded string representation of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s.Bytes())
}

// Sign signs data with the given private key using Ed25519.
// Used for resolver signals and any other privileged protocol message.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	signature := ed25519.Sign(ed25519.PrivateKey(privateKey), data)
	return Signature(signature), nil
}
