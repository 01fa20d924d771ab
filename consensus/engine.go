package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
	"github.com/DBYGuy/truthforge/shaping"
	"github.com/DBYGuy/truthforge/sybil"
)

// ProofValidator is the opaque proof-validity oracle. The core treats a
// credential as already verified when this predicate accepts it; no real
// cryptography happens inside the engine.
type ProofValidator interface {
	Validate(credential crypto.CredentialHash, claim crypto.ClaimHash,
		tier scoring.Tier, relevance int64) bool
}

// CustodyLedger is the external fungible-asset collaborator. The engine
// assumes conservation of amount only, not any specific token semantics.
type CustodyLedger interface {
	TransferIn(ctx context.Context, voter crypto.VoterID, amount *big.Int) error
	TransferOut(ctx context.Context, voter crypto.VoterID, amount *big.Int) error
}

// Engine is the consensus and escrow ledger.
//
// Each pool is a sequential, transactional resource: exactly one mutating
// operation per pool runs at a time, guarded by a per-pool lock, and every
// operation either fully commits or fully rejects. Time never comes from
// the system clock; every time-sensitive operation takes the current
// instant as an explicit argument, which keeps the engine deterministic
// and simulation-testable.
type Engine struct {
	config    *protocol.Config
	minStake  *big.Int
	validator ProofValidator
	custody   CustodyLedger
	guard     *sybil.Guard
	sink      EventSink
	log       *slog.Logger

	mu     sync.RWMutex
	shaper *shaping.Table
	paused bool
	pools  map[crypto.PoolID]*poolHandle
}

// poolHandle pairs a pool with its single-writer lock.
type poolHandle struct {
	mu   sync.RWMutex
	pool *Pool
}

// NewEngine creates a ledger engine with the provided collaborators.
// A nil sink falls back to structured logging; a nil logger falls back to
// slog.Default.
func NewEngine(config *protocol.Config, validator ProofValidator, custody CustodyLedger,
	guard *sybil.Guard, sink EventSink, log *slog.Logger) (*Engine, error) {

	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrValidation)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if validator == nil {
		return nil, fmt.Errorf("%w: proof validator cannot be nil", ErrValidation)
	}
	if custody == nil {
		return nil, fmt.Errorf("%w: custody ledger cannot be nil", ErrValidation)
	}
	if guard == nil {
		return nil, fmt.Errorf("%w: sybil guard cannot be nil", ErrValidation)
	}

	minStake, err := config.MinStakeAmount()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "consensus-engine")
	if sink == nil {
		sink = &SlogSink{Log: log}
	}

	return &Engine{
		config:    config,
		minStake:  minStake,
		validator: validator,
		custody:   custody,
		guard:     guard,
		sink:      sink,
		log:       log,
		shaper:    shaping.DefaultTable(),
		pools:     make(map[crypto.PoolID]*poolHandle),
	}, nil
}

// CreatePool registers a new open pool. Called by the external factory
// collaborator with the claim's content fingerprint and schedule.
func (e *Engine) CreatePool(now time.Time, id crypto.PoolID, claim crypto.ClaimHash,
	endTime time.Time, weights scoring.WeightTable) (*Snapshot, error) {

	if id == "" {
		return nil, fmt.Errorf("%w: empty pool id", ErrValidation)
	}
	if !endTime.After(now) {
		return nil, fmt.Errorf("%w: end time must be in the future", ErrValidation)
	}
	if weights == nil {
		weights = e.config.Weights
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.pools[id]; exists {
		return nil, fmt.Errorf("%w: pool %s already exists", ErrValidation, id)
	}

	p := newPool(id, claim, now, endTime, e.minStake, weights)
	e.pools[id] = &poolHandle{pool: p}

	e.log.Info("pool created", "pool", string(id), "claim", claim.String(), "end_time", endTime)
	return p.snapshot(), nil
}

// handle looks up a pool's handle.
func (e *Engine) handle(id crypto.PoolID) (*poolHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pool %s", ErrValidation, id)
	}
	return h, nil
}

// CastVote validates, scores and records one vote.
//
// Ordering inside the pool lock: all checks first, then stake escrow,
// then nullifier consumption, and only then the ledger write. The
// nullifiers are consumed before any dependent mutation, so a reentrant
// or concurrent attempt can never double-record; if consumption loses a
// cross-pool race on the same claim, the escrowed stake is returned and
// the vote fully rejects.
func (e *Engine) CastVote(ctx context.Context, now time.Time, poolID crypto.PoolID,
	req *protocol.VoteRequest) (*Vote, error) {

	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	paused := e.paused
	shaper := e.shaper
	e.mu.RUnlock()
	if paused {
		return nil, fmt.Errorf("%w: engine paused", ErrState)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pool

	if p.State != StateOpen {
		return nil, fmt.Errorf("%w: pool %s is %s", ErrState, poolID, p.State)
	}
	voteOpens := p.CreatedAt.Add(e.config.VoteDelay)
	if now.Before(voteOpens) {
		return nil, fmt.Errorf("%w: voting opens at %s", ErrState, voteOpens.Format(time.RFC3339))
	}
	if !now.Before(p.EndTime) {
		return nil, fmt.Errorf("%w: pool %s ended at %s", ErrState, poolID, p.EndTime.Format(time.RFC3339))
	}

	if err := validateVoteRequest(req); err != nil {
		return nil, err
	}
	if req.Stake.Cmp(p.MinStake) < 0 {
		return nil, fmt.Errorf("%w: stake %s below minimum %s", ErrValidation, req.Stake, p.MinStake)
	}
	if _, exists := p.Votes[req.Voter]; exists {
		return nil, fmt.Errorf("%w: voter %s already voted in pool %s", ErrReplay, req.Voter, poolID)
	}
	if !e.validator.Validate(req.Credential, req.Claim, req.Tier, req.Relevance) {
		return nil, fmt.Errorf("%w: credential proof rejected", ErrValidation)
	}
	if err := e.guard.Admit(ctx, req.Voter, now); err != nil {
		return nil, err
	}

	nullifier, domainNullifier, err := e.guard.Derive(req.Credential, req.Claim, req.Voter, poolID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if e.guard.Seen(nullifier) || e.guard.Seen(domainNullifier) {
		return nil, fmt.Errorf("%w: credential already participated on this claim", ErrReplay)
	}

	u := crypto.DeriveEntropy(req.Credential, req.Claim, req.Voter, poolID, shaping.Domain)
	bias := shaper.Shape(u)
	weight := scoring.Weight(p.Weights.BaseWeight(req.Tier), bias)
	gravity := scoring.Gravity(bias, req.Relevance)
	flagged := scoring.BiasFlagged(bias, e.config.FlagThreshold)

	if err := e.custody.TransferIn(ctx, req.Voter, req.Stake); err != nil {
		return nil, fmt.Errorf("%w: stake escrow failed: %w", ErrValidation, err)
	}
	if err := e.guard.Consume(nullifier, domainNullifier); err != nil {
		if cErr := e.custody.TransferOut(ctx, req.Voter, req.Stake); cErr != nil {
			e.log.Error("escrow compensation failed after replay",
				"pool", string(poolID), "voter", string(req.Voter), "err", cErr)
		}
		return nil, err
	}

	vote := &Vote{
		Voter:       req.Voter,
		Side:        req.Side,
		Stake:       new(big.Int).Set(req.Stake),
		Nullifier:   nullifier,
		Bias:        bias,
		Weight:      weight,
		Gravity:     gravity,
		BiasFlagged: flagged,
		CastAt:      now,
	}
	p.Votes[req.Voter] = vote
	p.sideStake(req.Side).Add(p.sideStake(req.Side), req.Stake)
	p.TotalDeposited.Add(p.TotalDeposited, req.Stake)

	ev := newEvent(EventVoteRecorded, poolID, p.State, now)
	ev.Voter = req.Voter
	ev.Side = req.Side
	ev.Stake = new(big.Int).Set(req.Stake)
	ev.Bias = bias
	ev.Weight = weight
	ev.Gravity = gravity
	e.sink.Emit(ctx, ev)

	e.log.Info("vote recorded",
		"pool", string(poolID), "voter", string(req.Voter), "side", req.Side.String(),
		"stake", req.Stake.String(), "bias", bias, "weight", weight, "gravity", gravity,
		"flagged", flagged)

	return vote, nil
}

// validateVoteRequest checks the request ranges the scorer assumes.
func validateVoteRequest(req *protocol.VoteRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil vote request", ErrValidation)
	}
	if req.Voter == "" {
		return fmt.Errorf("%w: empty voter id", ErrValidation)
	}
	if !req.Side.Valid() {
		return fmt.Errorf("%w: invalid side %d", ErrValidation, int(req.Side))
	}
	if !req.Tier.Valid() {
		return fmt.Errorf("%w: invalid tier %d", ErrValidation, int(req.Tier))
	}
	if req.Relevance < 0 || req.Relevance > scoring.RelevanceMax {
		return fmt.Errorf("%w: relevance %d out of range", ErrValidation, req.Relevance)
	}
	if req.Stake == nil || req.Stake.Sign() <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrValidation)
	}
	return nil
}

// EarlyResolve freezes a pool's outcome from a privileged external
// confidence signal before its end time. The signal's outcome is
// authoritative even against the current stake tally.
func (e *Engine) EarlyResolve(ctx context.Context, now time.Time, poolID crypto.PoolID,
	signed *protocol.Signed[protocol.ResolutionSignal]) (*Snapshot, error) {

	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	if len(e.config.ResolverKey) == 0 {
		return nil, fmt.Errorf("%w: early resolution disabled", ErrValidation)
	}

	signal, signer, err := signed.Recover()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !signer.Equal(e.config.ResolverKey) {
		return nil, fmt.Errorf("%w: signer is not the configured resolver", ErrValidation)
	}
	if signal.Pool != poolID {
		return nil, fmt.Errorf("%w: signal targets pool %s", ErrValidation, signal.Pool)
	}
	if !signal.Outcome.Valid() {
		return nil, fmt.Errorf("%w: invalid outcome", ErrValidation)
	}
	if signal.Confidence < e.config.ResolveThreshold {
		return nil, fmt.Errorf("%w: confidence %d below threshold %d",
			ErrValidation, signal.Confidence, e.config.ResolveThreshold)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pool

	if p.State != StateOpen {
		return nil, fmt.Errorf("%w: pool %s already %s", ErrState, poolID, p.State)
	}

	p.State = StateClosed
	p.CloseCause = CauseEarlyResolve
	p.Winner = signal.Outcome

	ev := newEvent(EventPoolResolved, poolID, p.State, now)
	ev.Side = p.Winner
	e.sink.Emit(ctx, ev)

	e.log.Info("pool early-resolved",
		"pool", string(poolID), "winner", p.Winner.String(), "confidence", signal.Confidence)

	return p.snapshot(), nil
}

// Expire closes a pool whose end time has passed. The side with strictly
// greater aggregate stake wins; an exact tie resolves to the configured
// tie-break side, deterministically.
func (e *Engine) Expire(ctx context.Context, now time.Time, poolID crypto.PoolID) (*Snapshot, error) {
	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pool

	if p.State != StateOpen {
		return nil, fmt.Errorf("%w: pool %s already %s", ErrState, poolID, p.State)
	}
	if now.Before(p.EndTime) {
		return nil, fmt.Errorf("%w: pool %s runs until %s", ErrState, poolID, p.EndTime.Format(time.RFC3339))
	}

	switch p.StakeTrue.Cmp(p.StakeFalse) {
	case 1:
		p.Winner = protocol.SideTrue
	case -1:
		p.Winner = protocol.SideFalse
	default:
		p.Winner = e.config.TieBreakSide
	}

	p.State = StateClosed
	p.CloseCause = CauseExpiry

	ev := newEvent(EventPoolExpired, poolID, p.State, now)
	ev.Side = p.Winner
	e.sink.Emit(ctx, ev)

	e.log.Info("pool expired",
		"pool", string(poolID), "winner", p.Winner.String(),
		"stake_true", p.StakeTrue.String(), "stake_false", p.StakeFalse.String())

	return p.snapshot(), nil
}

// Claim pays out one voter's entitlement from a closed pool: the stake
// refund plus a pro-rata share of the losing side's forfeited stake,
// weighted by the vote's scorer-derived contribution.
//
// The vote is marked claimed before value moves (write-before-transfer);
// if the custody transfer fails the mark is rolled back and the operation
// fully rejects.
func (e *Engine) Claim(ctx context.Context, now time.Time, poolID crypto.PoolID,
	voter crypto.VoterID) (*big.Int, error) {

	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pool

	if p.State != StateClosed {
		return nil, fmt.Errorf("%w: pool %s is %s, claims open at closure", ErrState, poolID, p.State)
	}

	v, ok := p.Votes[voter]
	if !ok {
		return nil, fmt.Errorf("%w: no vote by %s in pool %s", ErrValidation, voter, poolID)
	}
	if v.Claimed {
		return nil, fmt.Errorf("%w: entitlement already claimed", ErrState)
	}
	if v.Side != p.Winner {
		return nil, fmt.Errorf("%w: losing side has no entitlement", ErrState)
	}

	payout := e.entitlement(p, v)

	// Write before transfer: zero the entitlement first so nothing can
	// observe an unclaimed vote while value is in flight.
	v.Claimed = true
	p.TotalClaimed.Add(p.TotalClaimed, payout)

	if err := e.custody.TransferOut(ctx, voter, payout); err != nil {
		v.Claimed = false
		p.TotalClaimed.Sub(p.TotalClaimed, payout)
		return nil, fmt.Errorf("%w: payout transfer failed: %w", ErrValidation, err)
	}

	ev := newEvent(EventRewardClaimed, poolID, p.State, now)
	ev.Voter = voter
	ev.Side = v.Side
	ev.Stake = new(big.Int).Set(payout)
	ev.Bias = v.Bias
	ev.Weight = v.Weight
	ev.Gravity = v.Gravity
	e.sink.Emit(ctx, ev)

	e.log.Info("reward claimed",
		"pool", string(poolID), "voter", string(voter), "payout", payout.String())

	return payout, nil
}

// entitlement computes refund plus forfeiture share for a winning vote.
// Shares floor toward zero, so the sum across all claimants never exceeds
// the forfeited pot.
func (e *Engine) entitlement(p *Pool, v *Vote) *big.Int {
	payout := new(big.Int).Set(v.Stake)

	forfeited := p.sideStake(p.Winner.Opposite())
	if forfeited.Sign() == 0 {
		return payout
	}

	totalContrib := p.winningContribution()
	if totalContrib.Sign() == 0 {
		return payout
	}

	share := new(big.Int).Mul(forfeited, v.contribution())
	share.Div(share, totalContrib)
	return payout.Add(payout, share)
}

// Entitlement previews a voter's claimable amount without mutating state.
// Returns zero for losing-side or already-claimed votes.
func (e *Engine) Entitlement(poolID crypto.PoolID, voter crypto.VoterID) (*big.Int, error) {
	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	p := h.pool

	if p.State != StateClosed {
		return nil, fmt.Errorf("%w: pool %s is %s", ErrState, poolID, p.State)
	}
	v, ok := p.Votes[voter]
	if !ok {
		return nil, fmt.Errorf("%w: no vote by %s in pool %s", ErrValidation, voter, poolID)
	}
	if v.Claimed || v.Side != p.Winner {
		return new(big.Int), nil
	}
	return e.entitlement(p, v), nil
}

// BiasPreview computes the bias a (credential, claim, voter, pool) tuple
// would score, without touching any ledger state. Safe to call
// concurrently with mutations.
func (e *Engine) BiasPreview(credential crypto.CredentialHash, claim crypto.ClaimHash,
	voter crypto.VoterID, pool crypto.PoolID) int64 {

	e.mu.RLock()
	shaper := e.shaper
	e.mu.RUnlock()

	u := crypto.DeriveEntropy(credential, claim, voter, pool, shaping.Domain)
	return shaper.Shape(u)
}

// Snapshot returns a read-only view of a pool.
func (e *Engine) Snapshot(poolID crypto.PoolID) (*Snapshot, error) {
	h, err := e.handle(poolID)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pool.snapshot(), nil
}

// Pools lists the ids of all known pools.
func (e *Engine) Pools() []crypto.PoolID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]crypto.PoolID, 0, len(e.pools))
	for id := range e.pools {
		ids = append(ids, id)
	}
	return ids
}

// Pause suspends vote intake, opening the administrative window in which
// shaping coefficients may be upgraded.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	e.log.Warn("engine paused")
}

// Resume reopens vote intake.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.log.Info("engine resumed")
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// ShapingVersion reports the active coefficient table version.
func (e *Engine) ShapingVersion() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shaper.Version()
}

// UpgradeShaping swaps in a new shaping table. Legal only while the
// engine is paused, and only to a strictly newer version; every other
// attempt fails with ErrCoefficientsLocked and changes nothing. The old
// table is never mutated.
func (e *Engine) UpgradeShaping(table *shaping.Table) error {
	if table == nil {
		return fmt.Errorf("%w: nil table", ErrValidation)
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.paused {
		return ErrCoefficientsLocked
	}
	if table.Version() <= e.shaper.Version() {
		return fmt.Errorf("%w: version %d does not advance %d",
			ErrValidation, table.Version(), e.shaper.Version())
	}

	old := e.shaper.Version()
	e.shaper = table
	e.log.Warn("shaping table upgraded", "from_version", old, "to_version", table.Version())
	return nil
}
