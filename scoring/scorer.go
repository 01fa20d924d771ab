package scoring

import "fmt"

// Tier is a credential quality level attested by the proof oracle.
// Higher tiers carry more base voting weight.
type Tier int

const (
	TierBasic Tier = iota
	TierVerified
	TierExpert
	TierAuthority
)

// String returns the tier name for logging and events.
func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierVerified:
		return "verified"
	case TierExpert:
		return "expert"
	case TierAuthority:
		return "authority"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether the tier is a member of the enumerated set.
func (t Tier) Valid() bool {
	return t >= TierBasic && t <= TierAuthority
}

const (
	// BiasMax is the upper bound of the bias and gravity scales.
	BiasMax = 100

	// RelevanceMax is the upper bound of the relevance scale.
	RelevanceMax = 100

	// MinWeight is the floor applied to every vote weight so that no
	// valid vote is ever weightless.
	MinWeight = 1

	// DefaultFlagThreshold is the bias value above which a vote is
	// flagged as biased. Informational only; flagged votes still count.
	DefaultFlagThreshold = 50
)

// WeightTable maps credential tiers to base weights. Pools may carry
// their own table; DefaultWeights is used when the factory does not
// supply one.
type WeightTable map[Tier]int64

// DefaultWeights is the reference base-weight table.
var DefaultWeights = WeightTable{
	TierBasic:     10,
	TierVerified:  25,
	TierExpert:    50,
	TierAuthority: 100,
}

// BaseWeight returns the base weight for a tier, falling back to the
// default table for tiers the pool's table does not name.
func (w WeightTable) BaseWeight(tier Tier) int64 {
	if base, ok := w[tier]; ok {
		return base
	}
	return DefaultWeights[tier]
}

// Weight derives a vote's influence from its credential tier and bias:
//
//	weight = baseWeight / (1 + bias/100)
//
// computed in integer arithmetic as baseWeight*100/(100+bias) and floored
// at MinWeight. The function is symmetric with respect to vote side; the
// side never enters the computation.
func Weight(base int64, bias int64) int64 {
	w := base * 100 / (100 + bias)
	if w < MinWeight {
		return MinWeight
	}
	return w
}

// Gravity derives the penalty-adjustment score for a vote:
//
//	gravity = 100 - bias*(100-relevance)/100
//
// A biased vote on an event the voter claims little relevance to gravitates
// harder against its holder than the same bias with high relevance.
func Gravity(bias int64, relevance int64) int64 {
	return BiasMax - bias*(RelevanceMax-relevance)/RelevanceMax
}

// BiasFlagged reports whether a bias score crosses the flag threshold.
// The flag is an informational tag on the vote, never a rejection.
func BiasFlagged(bias int64, threshold int64) bool {
	return bias > threshold
}
