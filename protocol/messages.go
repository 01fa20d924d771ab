package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/scoring"
)

// Signed wraps a message with an Ed25519 signature for authentication.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates an authenticated message by signing the serialized
// object and public key.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the wrapped object without verifying the signature.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the authenticated object
// with the signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	ok := s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...))
	if !ok {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// VoteRequest carries everything needed to cast one vote.
type VoteRequest struct {
	Voter      crypto.VoterID        `json:"voter"`
	Side       Side                  `json:"side"`
	Stake      *big.Int              `json:"stake"`
	Credential crypto.CredentialHash `json:"-"`
	Claim      crypto.ClaimHash      `json:"-"`
	Tier       scoring.Tier          `json:"tier"`
	Relevance  int64                 `json:"relevance"`
}

// ResolutionSignal is the privileged message that resolves a pool before
// its end time. Only the configured resolver key may issue one, and its
// confidence must cross the configured threshold.
//
// By design the signal's outcome is authoritative even when it contradicts
// the stake tally so far: the signal represents ground truth becoming
// available (for example, the claimed event verifiably occurring), at
// which point continuing to aggregate opinions would be pointless.
type ResolutionSignal struct {
	Pool       crypto.PoolID `json:"pool"`
	Outcome    Side          `json:"outcome"`
	Confidence int64         `json:"confidence"`
	IssuedAt   time.Time     `json:"issued_at"`
}

// DecodeMessage decodes a JSON message from a reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
