package consensus

import (
	"fmt"
	"math/big"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
)

// State is a pool's lifecycle position. It only ever advances forward:
// an open pool closes exactly once (by early resolution or expiry) and a
// closed pool never reopens.
type State int

const (
	// StateOpen accepts votes.
	StateOpen State = iota
	// StateClosed has a frozen winning side and drains claims.
	StateClosed
)

// String returns the state name for logging and events.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CloseCause records how a pool reached StateClosed.
type CloseCause int

const (
	// CauseNone means the pool is still open.
	CauseNone CloseCause = iota
	// CauseEarlyResolve means a privileged resolution signal froze the outcome.
	CauseEarlyResolve
	// CauseExpiry means the pool ran to its end time and the stake tally decided.
	CauseExpiry
)

// String returns the cause name for logging and events.
func (c CloseCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseEarlyResolve:
		return "early-resolve"
	case CauseExpiry:
		return "expiry"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// Vote is one voter's recorded participation in a pool. A Vote exists iff
// positive stake was escrowed for that voter in that pool.
type Vote struct {
	Voter       crypto.VoterID
	Side        protocol.Side
	Stake       *big.Int
	Nullifier   crypto.Nullifier
	Bias        int64
	Weight      int64
	Gravity     int64
	BiasFlagged bool
	Claimed     bool
	CastAt      time.Time
}

// contribution is the scorer-weighted share basis used for forfeiture
// redistribution: stake scaled by weight and gravity, not raw stake alone.
func (v *Vote) contribution() *big.Int {
	c := new(big.Int).Set(v.Stake)
	c.Mul(c, big.NewInt(v.Weight))
	c.Mul(c, big.NewInt(v.Gravity))
	return c
}

// Pool is the consensus and escrow ledger for one claim.
//
// All mutation goes through the Engine, which serializes operations per
// pool; Pool itself carries no lock.
type Pool struct {
	ID        crypto.PoolID
	Claim     crypto.ClaimHash
	CreatedAt time.Time
	EndTime   time.Time
	MinStake  *big.Int
	Weights   scoring.WeightTable

	State      State
	CloseCause CloseCause
	Winner     protocol.Side

	// Aggregate stake per side. The sum of both always equals the sum of
	// the constituent vote stakes.
	StakeTrue  *big.Int
	StakeFalse *big.Int

	Votes map[crypto.VoterID]*Vote

	// Escrow accounting for the conservation invariant: claimed value can
	// never exceed deposited value.
	TotalDeposited *big.Int
	TotalClaimed   *big.Int
}

// newPool constructs an open pool with zeroed aggregates.
func newPool(id crypto.PoolID, claim crypto.ClaimHash, createdAt, endTime time.Time,
	minStake *big.Int, weights scoring.WeightTable) *Pool {

	return &Pool{
		ID:             id,
		Claim:          claim,
		CreatedAt:      createdAt,
		EndTime:        endTime,
		MinStake:       new(big.Int).Set(minStake),
		Weights:        weights,
		State:          StateOpen,
		StakeTrue:      new(big.Int),
		StakeFalse:     new(big.Int),
		Votes:          make(map[crypto.VoterID]*Vote),
		TotalDeposited: new(big.Int),
		TotalClaimed:   new(big.Int),
	}
}

// sideStake returns the aggregate stake pointer for a side.
func (p *Pool) sideStake(side protocol.Side) *big.Int {
	if side == protocol.SideTrue {
		return p.StakeTrue
	}
	return p.StakeFalse
}

// winningContribution sums the contributions of all winning-side votes.
// The sum is independent of claim order, so every claimant sees the same
// denominator.
func (p *Pool) winningContribution() *big.Int {
	total := new(big.Int)
	for _, v := range p.Votes {
		if v.Side == p.Winner {
			total.Add(total, v.contribution())
		}
	}
	return total
}

// Snapshot is a read-only copy of pool status for concurrent readers.
type Snapshot struct {
	ID         crypto.PoolID  `json:"id"`
	Claim      string         `json:"claim"`
	State      string         `json:"state"`
	CloseCause string         `json:"close_cause"`
	Winner     *protocol.Side `json:"winner,omitempty"`
	EndTime    time.Time      `json:"end_time"`
	StakeTrue  *big.Int       `json:"stake_true"`
	StakeFalse *big.Int       `json:"stake_false"`
	VoteCount  int            `json:"vote_count"`
}

// snapshot copies the externally interesting pool fields.
func (p *Pool) snapshot() *Snapshot {
	s := &Snapshot{
		ID:         p.ID,
		Claim:      p.Claim.String(),
		State:      p.State.String(),
		CloseCause: p.CloseCause.String(),
		EndTime:    p.EndTime,
		StakeTrue:  new(big.Int).Set(p.StakeTrue),
		StakeFalse: new(big.Int).Set(p.StakeFalse),
		VoteCount:  len(p.Votes),
	}
	if p.State == StateClosed {
		winner := p.Winner
		s.Winner = &winner
	}
	return s
}
