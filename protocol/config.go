package protocol

import (
	"errors"
	"math/big"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/scoring"
)

// Config provides protocol parameters shared by every pool.
type Config struct {
	// MinStake is the smallest stake accepted for a single vote, in base
	// token units encoded as a decimal string.
	MinStake string `json:"min_stake" yaml:"min_stake"`

	// VoteDelay is the anti-flash-loan delay: votes are accepted only
	// once this much time has passed since pool creation, so stake
	// borrowed within a single block cannot be used to vote.
	VoteDelay time.Duration `json:"vote_delay,string" yaml:"vote_delay"`

	// FlagThreshold is the bias value above which votes are flagged.
	FlagThreshold int64 `json:"flag_threshold" yaml:"flag_threshold"`

	// TieBreakSide is the side a pool resolves to when aggregate stake is
	// exactly equal at expiry.
	TieBreakSide Side `json:"tie_break_side" yaml:"tie_break_side"`

	// ResolveThreshold is the minimum confidence, on a 0-100 scale, an
	// early-resolution signal must carry to freeze an outcome.
	ResolveThreshold int64 `json:"resolve_threshold" yaml:"resolve_threshold"`

	// RateWindow and RateMaxOps bound per-voter participation frequency.
	RateWindow time.Duration `json:"rate_window,string" yaml:"rate_window"`
	RateMaxOps int           `json:"rate_max_ops" yaml:"rate_max_ops"`

	// Weights maps credential tiers to base vote weights. Pools created
	// without an explicit table inherit this one.
	Weights scoring.WeightTable `json:"weights,omitempty" yaml:"weights,omitempty"`

	// ResolverKey is the Ed25519 public key authorized to sign
	// early-resolution signals. Empty disables early resolution.
	ResolverKey crypto.PublicKey `json:"resolver_key,omitempty" yaml:"resolver_key,omitempty"`
}

// DefaultConfig returns the reference protocol parameters.
func DefaultConfig() *Config {
	return &Config{
		MinStake:         "1",
		VoteDelay:        30 * time.Second,
		FlagThreshold:    scoring.DefaultFlagThreshold,
		TieBreakSide:     SideFalse,
		ResolveThreshold: 90,
		RateWindow:       time.Minute,
		RateMaxOps:       10,
		Weights:          scoring.DefaultWeights,
	}
}

// MinStakeAmount parses the configured minimum stake.
func (c *Config) MinStakeAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(c.MinStake, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("invalid min_stake")
	}
	return amount, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if _, err := c.MinStakeAmount(); err != nil {
		return err
	}
	if c.VoteDelay < 0 {
		return errors.New("vote_delay must not be negative")
	}
	if c.FlagThreshold < 0 || c.FlagThreshold > scoring.BiasMax {
		return errors.New("flag_threshold out of range")
	}
	if !c.TieBreakSide.Valid() {
		return errors.New("tie_break_side invalid")
	}
	if c.ResolveThreshold < 0 || c.ResolveThreshold > 100 {
		return errors.New("resolve_threshold out of range")
	}
	if c.RateMaxOps < 0 {
		return errors.New("rate_max_ops must not be negative")
	}
	return nil
}
