package testutil

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
)

// =====================================
// Configuration Generators
// =====================================

// TestConfigOption modifies a protocol.Config.
type TestConfigOption func(*protocol.Config)

// WithMinStake sets the minimum stake as a decimal string.
func WithMinStake(minStake string) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.MinStake = minStake
	}
}

// WithVoteDelay sets the anti-flash-loan vote delay.
func WithVoteDelay(delay time.Duration) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.VoteDelay = delay
	}
}

// WithFlagThreshold sets the bias flag threshold.
func WithFlagThreshold(threshold int64) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.FlagThreshold = threshold
	}
}

// WithTieBreakSide sets the side ties resolve to at expiry.
func WithTieBreakSide(side protocol.Side) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.TieBreakSide = side
	}
}

// WithResolverKey authorizes a key for early resolution.
func WithResolverKey(key crypto.PublicKey) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.ResolverKey = key
	}
}

// WithRateLimit sets the sliding-window rate limit.
func WithRateLimit(window time.Duration, maxOps int) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.RateWindow = window
		cfg.RateMaxOps = maxOps
	}
}

// NewTestConfig creates a protocol configuration suitable for tests:
// defaults with the vote delay removed so votes land immediately.
func NewTestConfig(options ...TestConfigOption) *protocol.Config {
	cfg := protocol.DefaultConfig()
	cfg.VoteDelay = 0

	for _, option := range options {
		option(cfg)
	}
	return cfg
}

// =====================================
// Crypto Generators
// =====================================

// GenerateRandomBytes returns length random bytes.
func GenerateRandomBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

// NewCredential derives a deterministic credential hash from a seed.
// Distinct seeds give distinct credentials.
func NewCredential(seed uint64) crypto.CredentialHash {
	var c crypto.CredentialHash
	binary.BigEndian.PutUint64(c[:8], seed)
	return c
}

// NewClaim derives a deterministic claim hash from a seed.
func NewClaim(seed uint64) crypto.ClaimHash {
	var c crypto.ClaimHash
	binary.BigEndian.PutUint64(c[:8], seed)
	return c
}

// GenerateTestKeyPair generates an Ed25519 key pair.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// =====================================
// Vote Request Generators
// =====================================

// VoteOption modifies a VoteRequest.
type VoteOption func(*protocol.VoteRequest)

// WithStake sets the stake amount.
func WithStake(stake int64) VoteOption {
	return func(req *protocol.VoteRequest) {
		req.Stake = big.NewInt(stake)
	}
}

// WithTier sets the credential tier.
func WithTier(tier scoring.Tier) VoteOption {
	return func(req *protocol.VoteRequest) {
		req.Tier = tier
	}
}

// WithRelevance sets the relevance score.
func WithRelevance(relevance int64) VoteOption {
	return func(req *protocol.VoteRequest) {
		req.Relevance = relevance
	}
}

// WithCredential sets the credential hash.
func WithCredential(credential crypto.CredentialHash) VoteOption {
	return func(req *protocol.VoteRequest) {
		req.Credential = credential
	}
}

// WithClaim sets the claim hash.
func WithClaim(claim crypto.ClaimHash) VoteOption {
	return func(req *protocol.VoteRequest) {
		req.Claim = claim
	}
}

// NewVoteRequest creates a well-formed vote request: stake 100, basic
// tier, full relevance, and a credential derived from the voter id.
func NewVoteRequest(voter crypto.VoterID, side protocol.Side, options ...VoteOption) *protocol.VoteRequest {
	seed := uint64(0)
	for _, b := range []byte(voter) {
		seed = seed*31 + uint64(b)
	}

	req := &protocol.VoteRequest{
		Voter:      voter,
		Side:       side,
		Stake:      big.NewInt(100),
		Credential: NewCredential(seed),
		Claim:      NewClaim(1),
		Tier:       scoring.TierBasic,
		Relevance:  100,
	}

	for _, option := range options {
		option(req)
	}
	return req
}

// =====================================
// Resolution Signals
// =====================================

// NewResolutionSignal creates a signed early-resolution signal.
func NewResolutionSignal(key crypto.PrivateKey, pool crypto.PoolID,
	outcome protocol.Side, confidence int64) (*protocol.Signed[protocol.ResolutionSignal], error) {

	return protocol.NewSigned(key, &protocol.ResolutionSignal{
		Pool:       pool,
		Outcome:    outcome,
		Confidence: confidence,
		IssuedAt:   time.Now().UTC(),
	})
}
