package consensus

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
)

// VoteRecord is the storable form of a recorded vote.
type VoteRecord struct {
	Voter       crypto.VoterID `json:"voter"`
	Side        protocol.Side  `json:"side"`
	Stake       *big.Int       `json:"stake"`
	Nullifier   string         `json:"nullifier"`
	Bias        int64          `json:"bias"`
	Weight      int64          `json:"weight"`
	Gravity     int64          `json:"gravity"`
	BiasFlagged bool           `json:"bias_flagged"`
	Claimed     bool           `json:"claimed"`
	CastAt      time.Time      `json:"cast_at"`
}

// PoolRecord is the storable form of a pool: everything needed to
// rebuild it after a restart. The per-side aggregates are not stored;
// Restore recomputes them from the votes, so a record can never carry
// aggregates that disagree with its contents.
type PoolRecord struct {
	ID           crypto.PoolID       `json:"id"`
	Claim        crypto.ClaimHash    `json:"claim"`
	CreatedAt    time.Time           `json:"created_at"`
	EndTime      time.Time           `json:"end_time"`
	MinStake     *big.Int            `json:"min_stake"`
	Weights      scoring.WeightTable `json:"weights"`
	State        State               `json:"state"`
	CloseCause   CloseCause          `json:"close_cause"`
	Winner       protocol.Side       `json:"winner"`
	TotalClaimed *big.Int            `json:"total_claimed"`
	Votes        []VoteRecord        `json:"votes"`
}

// Export copies one pool into its storable record form. Votes are
// ordered by cast time then voter id, so repeated exports of the same
// pool are byte-identical.
func (e *Engine) Export(poolID crypto.PoolID) (*PoolRecord, error) {
	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	p := h.pool

	rec := &PoolRecord{
		ID:           p.ID,
		Claim:        p.Claim,
		CreatedAt:    p.CreatedAt,
		EndTime:      p.EndTime,
		MinStake:     new(big.Int).Set(p.MinStake),
		Weights:      p.Weights,
		State:        p.State,
		CloseCause:   p.CloseCause,
		Winner:       p.Winner,
		TotalClaimed: new(big.Int).Set(p.TotalClaimed),
		Votes:        make([]VoteRecord, 0, len(p.Votes)),
	}
	for _, v := range p.Votes {
		rec.Votes = append(rec.Votes, VoteRecord{
			Voter:       v.Voter,
			Side:        v.Side,
			Stake:       new(big.Int).Set(v.Stake),
			Nullifier:   v.Nullifier.String(),
			Bias:        v.Bias,
			Weight:      v.Weight,
			Gravity:     v.Gravity,
			BiasFlagged: v.BiasFlagged,
			Claimed:     v.Claimed,
			CastAt:      v.CastAt,
		})
	}
	sort.Slice(rec.Votes, func(i, j int) bool {
		if !rec.Votes[i].CastAt.Equal(rec.Votes[j].CastAt) {
			return rec.Votes[i].CastAt.Before(rec.Votes[j].CastAt)
		}
		return rec.Votes[i].Voter < rec.Votes[j].Voter
	})

	return rec, nil
}

// Restore rebuilds a pool from its stored record and registers it. The
// pool id must not already be known; aggregates are recomputed from the
// record's votes.
func (e *Engine) Restore(rec *PoolRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil pool record", ErrValidation)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: empty pool id", ErrValidation)
	}
	if rec.MinStake == nil || rec.TotalClaimed == nil {
		return fmt.Errorf("%w: pool record %s missing amounts", ErrValidation, rec.ID)
	}

	p := newPool(rec.ID, rec.Claim, rec.CreatedAt, rec.EndTime, rec.MinStake, rec.Weights)
	p.State = rec.State
	p.CloseCause = rec.CloseCause
	p.Winner = rec.Winner
	p.TotalClaimed.Set(rec.TotalClaimed)

	for i := range rec.Votes {
		vr := &rec.Votes[i]
		if vr.Stake == nil || vr.Stake.Sign() <= 0 {
			return fmt.Errorf("%w: vote by %s in pool %s has invalid stake",
				ErrValidation, vr.Voter, rec.ID)
		}
		if _, dup := p.Votes[vr.Voter]; dup {
			return fmt.Errorf("%w: duplicate vote by %s in pool %s",
				ErrValidation, vr.Voter, rec.ID)
		}

		nullifier, err := crypto.NewNullifierFromString(vr.Nullifier)
		if err != nil {
			return fmt.Errorf("%w: vote by %s in pool %s has malformed nullifier: %v",
				ErrValidation, vr.Voter, rec.ID, err)
		}

		p.Votes[vr.Voter] = &Vote{
			Voter:       vr.Voter,
			Side:        vr.Side,
			Stake:       new(big.Int).Set(vr.Stake),
			Nullifier:   nullifier,
			Bias:        vr.Bias,
			Weight:      vr.Weight,
			Gravity:     vr.Gravity,
			BiasFlagged: vr.BiasFlagged,
			Claimed:     vr.Claimed,
			CastAt:      vr.CastAt,
		}
		p.sideStake(vr.Side).Add(p.sideStake(vr.Side), vr.Stake)
		p.TotalDeposited.Add(p.TotalDeposited, vr.Stake)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.pools[rec.ID]; exists {
		return fmt.Errorf("%w: pool %s already exists", ErrValidation, rec.ID)
	}
	e.pools[rec.ID] = &poolHandle{pool: p}

	e.log.Info("pool restored",
		"pool", string(rec.ID), "state", p.State.String(), "votes", len(p.Votes))
	return nil
}
