package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
	"github.com/DBYGuy/truthforge/shaping"
	"github.com/DBYGuy/truthforge/sybil"
)

var testClaim = crypto.ClaimHash{0xc1, 0xa1}

type stubValidator struct {
	reject bool
}

func (v *stubValidator) Validate(crypto.CredentialHash, crypto.ClaimHash, scoring.Tier, int64) bool {
	return !v.reject
}

// stubCustody tracks net escrowed value and call counts, with switchable
// failure injection for atomicity tests.
type stubCustody struct {
	mu       sync.Mutex
	escrowed *big.Int
	ins      int
	outs     int
	failIn   bool
	failOut  bool
}

func newStubCustody() *stubCustody {
	return &stubCustody{escrowed: new(big.Int)}
}

func (c *stubCustody) TransferIn(_ context.Context, _ crypto.VoterID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIn {
		return errors.New("custody unavailable")
	}
	c.ins++
	c.escrowed.Add(c.escrowed, amount)
	return nil
}

func (c *stubCustody) TransferOut(_ context.Context, _ crypto.VoterID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOut {
		return errors.New("custody unavailable")
	}
	c.outs++
	c.escrowed.Sub(c.escrowed, amount)
	return nil
}

func (c *stubCustody) balance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.escrowed)
}

type testHarness struct {
	engine  *Engine
	custody *stubCustody
	sink    *MemorySink
	config  *protocol.Config
	guard   *sybil.Guard
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHarness(t *testing.T, mutate func(cfg *protocol.Config)) *testHarness {
	t.Helper()

	cfg := protocol.DefaultConfig()
	cfg.VoteDelay = 0
	if mutate != nil {
		mutate(cfg)
	}

	log := discardLogger()
	guard := sybil.NewGuard(sybil.NewMemoryRegistry(), sybil.NopLimiter{}, log)
	custody := newStubCustody()
	sink := &MemorySink{}

	engine, err := NewEngine(cfg, &stubValidator{}, custody, guard, sink, log)
	require.NoError(t, err)

	return &testHarness{engine: engine, custody: custody, sink: sink, config: cfg, guard: guard}
}

func (h *testHarness) openPool(t *testing.T, id crypto.PoolID, now time.Time, ttl time.Duration) {
	t.Helper()
	_, err := h.engine.CreatePool(now, id, testClaim, now.Add(ttl), nil)
	require.NoError(t, err)
}

func credential(n uint64) crypto.CredentialHash {
	var c crypto.CredentialHash
	binary.BigEndian.PutUint64(c[:8], n)
	return c
}

func voteReq(voter crypto.VoterID, side protocol.Side, stake int64, cred uint64) *protocol.VoteRequest {
	return &protocol.VoteRequest{
		Voter:      voter,
		Side:       side,
		Stake:      big.NewInt(stake),
		Credential: credential(cred),
		Claim:      testClaim,
		Tier:       scoring.TierVerified,
		Relevance:  100,
	}
}

func TestCreatePool(t *testing.T) {
	h := newTestHarness(t, nil)
	now := time.Unix(1700000000, 0)

	snap, err := h.engine.CreatePool(now, "pool-1", testClaim, now.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, "open", snap.State)
	assert.Nil(t, snap.Winner)

	_, err = h.engine.CreatePool(now, "pool-1", testClaim, now.Add(time.Hour), nil)
	assert.ErrorIs(t, err, ErrValidation, "duplicate pool id must be rejected")

	_, err = h.engine.CreatePool(now, "pool-2", testClaim, now, nil)
	assert.ErrorIs(t, err, ErrValidation, "end time must be after creation")
}

func TestCastVote_RecordsAndAggregates(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	v1, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 200, 1))
	require.NoError(t, err)
	v2, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("bob", protocol.SideFalse, 100, 2))
	require.NoError(t, err)

	for _, v := range []*Vote{v1, v2} {
		assert.GreaterOrEqual(t, v.Bias, int64(0))
		assert.LessOrEqual(t, v.Bias, int64(scoring.BiasMax))
		assert.GreaterOrEqual(t, v.Weight, int64(scoring.MinWeight))
		assert.Equal(t, int64(100), v.Gravity, "full relevance means bias does not dampen gravity")
	}

	snap, err := h.engine.Snapshot("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "200", snap.StakeTrue.String())
	assert.Equal(t, "100", snap.StakeFalse.String())
	assert.Equal(t, 2, snap.VoteCount)

	assert.Equal(t, "300", h.custody.balance().String(), "all stake escrowed")

	events := h.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventVoteRecorded, events[0].Type)
	assert.Equal(t, crypto.VoterID("alice"), events[0].Voter)
}

func TestCastVote_RejectionLeavesNoPartialState(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	cases := []struct {
		name string
		req  *protocol.VoteRequest
	}{
		{"nil request", nil},
		{"empty voter", voteReq("", protocol.SideTrue, 10, 1)},
		{"invalid side", &protocol.VoteRequest{Voter: "v", Side: protocol.Side(5), Stake: big.NewInt(10), Tier: scoring.TierBasic}},
		{"invalid tier", &protocol.VoteRequest{Voter: "v", Side: protocol.SideTrue, Stake: big.NewInt(10), Tier: scoring.Tier(99)}},
		{"relevance above max", voteReqRelevance("v", 101)},
		{"relevance negative", voteReqRelevance("v", -1)},
		{"nil stake", &protocol.VoteRequest{Voter: "v", Side: protocol.SideTrue, Tier: scoring.TierBasic}},
		{"zero stake", voteReq("v", protocol.SideTrue, 0, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.CastVote(ctx, now, "pool-1", tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	snap, err := h.engine.Snapshot("pool-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.VoteCount, "rejected votes leave no ledger trace")
	assert.Equal(t, "0", h.custody.balance().String(), "rejected votes never touch custody")
}

func voteReqRelevance(voter crypto.VoterID, relevance int64) *protocol.VoteRequest {
	req := voteReq(voter, protocol.SideTrue, 10, 9)
	req.Relevance = relevance
	return req
}

func TestCastVote_StakeBelowMinimum(t *testing.T) {
	h := newTestHarness(t, func(cfg *protocol.Config) { cfg.MinStake = "50" })
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 49, 1))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 50, 1))
	assert.NoError(t, err)
}

func TestCastVote_ProofRejected(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	h.engine.validator.(*stubValidator).reject = true
	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 10, 1))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "0", h.custody.balance().String())
}

func TestCastVote_Replay(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)
	h.openPool(t, "pool-2", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 100, 1))
	require.NoError(t, err)

	// Same voter, same pool: rejected whatever the stake or side.
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideFalse, 500, 1))
	assert.ErrorIs(t, err, ErrReplay)

	// Same credential and claim in a different pool shares the primary
	// nullifier, so the second pool rejects it too.
	_, err = h.engine.CastVote(ctx, now, "pool-2", voteReq("alice", protocol.SideTrue, 100, 1))
	assert.ErrorIs(t, err, ErrReplay)

	// A different credential is free to vote in the second pool.
	_, err = h.engine.CastVote(ctx, now, "pool-2", voteReq("alice2", protocol.SideTrue, 100, 2))
	assert.NoError(t, err)

	assert.Equal(t, "200", h.custody.balance().String(), "replays escrow nothing")
}

func TestCastVote_RateLimited(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.VoteDelay = 0

	log := discardLogger()
	limiter := sybil.NewMemoryLimiter(sybil.WindowConfig{Window: time.Minute, MaxOps: 2})
	guard := sybil.NewGuard(sybil.NewMemoryRegistry(), limiter, log)
	custody := newStubCustody()

	engine, err := NewEngine(cfg, &stubValidator{}, custody, guard, nil, log)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		_, err := engine.CreatePool(now, crypto.PoolID(string(rune('a'+i))), testClaim, now.Add(time.Hour), nil)
		require.NoError(t, err)
	}

	req := func(cred uint64) *protocol.VoteRequest { return voteReq("alice", protocol.SideTrue, 10, cred) }

	_, err = engine.CastVote(ctx, now, "a", req(1))
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, now, "b", req(2))
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, now, "c", req(3))
	assert.ErrorIs(t, err, ErrResourceExhausted)

	// The window drains; the voter is admitted again.
	later := now.Add(2 * time.Minute)
	_, err = engine.CastVote(ctx, later, "c", req(3))
	assert.NoError(t, err)
}

func TestCastVote_TimeWindows(t *testing.T) {
	h := newTestHarness(t, func(cfg *protocol.Config) { cfg.VoteDelay = 30 * time.Second })
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now.Add(10*time.Second), "pool-1", voteReq("alice", protocol.SideTrue, 10, 1))
	assert.ErrorIs(t, err, ErrState, "votes before the delay window are refused")

	_, err = h.engine.CastVote(ctx, now.Add(30*time.Second), "pool-1", voteReq("alice", protocol.SideTrue, 10, 1))
	assert.NoError(t, err, "the delay boundary itself is votable")

	_, err = h.engine.CastVote(ctx, now.Add(time.Hour), "pool-1", voteReq("bob", protocol.SideTrue, 10, 2))
	assert.ErrorIs(t, err, ErrState, "votes at or after end time are refused")
}

func TestCastVote_CustodyFailureConsumesNothing(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	h.custody.failIn = true
	req := voteReq("alice", protocol.SideTrue, 100, 1)
	_, err := h.engine.CastVote(ctx, now, "pool-1", req)
	assert.ErrorIs(t, err, ErrValidation)

	nullifier, _, derr := h.guard.Derive(req.Credential, req.Claim, req.Voter, "pool-1")
	require.NoError(t, derr)
	assert.False(t, h.guard.Seen(nullifier), "failed escrow must not burn the nullifier")

	// The same request succeeds once custody recovers.
	h.custody.failIn = false
	_, err = h.engine.CastVote(ctx, now, "pool-1", req)
	assert.NoError(t, err)
}

func TestExpire(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	end := now.Add(time.Hour)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 200, 1))
	require.NoError(t, err)
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("bob", protocol.SideFalse, 100, 2))
	require.NoError(t, err)

	_, err = h.engine.Expire(ctx, now.Add(time.Minute), "pool-1")
	assert.ErrorIs(t, err, ErrState, "cannot expire before end time")

	snap, err := h.engine.Expire(ctx, end, "pool-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, "expiry", snap.CloseCause)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, protocol.SideTrue, *snap.Winner, "strictly greater stake wins")

	_, err = h.engine.Expire(ctx, end, "pool-1")
	assert.ErrorIs(t, err, ErrState, "closed pool cannot expire again")

	_, err = h.engine.CastVote(ctx, end, "pool-1", voteReq("carol", protocol.SideTrue, 10, 3))
	assert.ErrorIs(t, err, ErrState, "closed pool accepts no votes")
}

func TestExpire_TieBreaksDeterministically(t *testing.T) {
	for _, tieSide := range []protocol.Side{protocol.SideFalse, protocol.SideTrue} {
		h := newTestHarness(t, func(cfg *protocol.Config) { cfg.TieBreakSide = tieSide })
		ctx := context.Background()
		now := time.Unix(1700000000, 0)
		h.openPool(t, "pool-1", now, time.Hour)

		_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 100, 1))
		require.NoError(t, err)
		_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("bob", protocol.SideFalse, 100, 2))
		require.NoError(t, err)

		snap, err := h.engine.Expire(ctx, now.Add(time.Hour), "pool-1")
		require.NoError(t, err)
		require.NotNil(t, snap.Winner)
		assert.Equal(t, tieSide, *snap.Winner)
	}
}

func TestExpire_EmptyPool(t *testing.T) {
	h := newTestHarness(t, nil)
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	snap, err := h.engine.Expire(context.Background(), now.Add(time.Hour), "pool-1")
	require.NoError(t, err)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, h.config.TieBreakSide, *snap.Winner, "zero-zero tally is a tie")
}

func resolverHarness(t *testing.T) (*testHarness, crypto.PrivateKey) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	h := newTestHarness(t, func(cfg *protocol.Config) { cfg.ResolverKey = pub })
	return h, priv
}

func signedSignal(t *testing.T, priv crypto.PrivateKey, pool crypto.PoolID,
	outcome protocol.Side, confidence int64) *protocol.Signed[protocol.ResolutionSignal] {

	t.Helper()
	signed, err := protocol.NewSigned(priv, &protocol.ResolutionSignal{
		Pool:       pool,
		Outcome:    outcome,
		Confidence: confidence,
		IssuedAt:   time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)
	return signed
}

func TestEarlyResolve(t *testing.T) {
	h, priv := resolverHarness(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	// Stake tally leans false; the signal still freezes true.
	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideFalse, 500, 1))
	require.NoError(t, err)

	snap, err := h.engine.EarlyResolve(ctx, now.Add(time.Minute), "pool-1",
		signedSignal(t, priv, "pool-1", protocol.SideTrue, 95))
	require.NoError(t, err)
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, "early-resolve", snap.CloseCause)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, protocol.SideTrue, *snap.Winner, "signal outcome overrides stake tally")

	_, err = h.engine.EarlyResolve(ctx, now.Add(2*time.Minute), "pool-1",
		signedSignal(t, priv, "pool-1", protocol.SideFalse, 99))
	assert.ErrorIs(t, err, ErrState, "closed pool cannot resolve again")
}

func TestEarlyResolve_Rejections(t *testing.T) {
	h, priv := resolverHarness(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.EarlyResolve(ctx, now, "pool-1",
		signedSignal(t, priv, "pool-1", protocol.SideTrue, 89))
	assert.ErrorIs(t, err, ErrValidation, "confidence below threshold")

	_, err = h.engine.EarlyResolve(ctx, now, "pool-1",
		signedSignal(t, priv, "other-pool", protocol.SideTrue, 95))
	assert.ErrorIs(t, err, ErrValidation, "signal bound to a different pool")

	_, otherPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = h.engine.EarlyResolve(ctx, now, "pool-1",
		signedSignal(t, otherPriv, "pool-1", protocol.SideTrue, 95))
	assert.ErrorIs(t, err, ErrValidation, "signer is not the resolver")

	snap, err := h.engine.Snapshot("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "open", snap.State, "rejected signals change nothing")
}

func TestEarlyResolve_DisabledWithoutResolverKey(t *testing.T) {
	h := newTestHarness(t, nil)
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = h.engine.EarlyResolve(context.Background(), now, "pool-1",
		signedSignal(t, priv, "pool-1", protocol.SideTrue, 99))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClaim_WinnerTakesForfeits(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 200, 1))
	require.NoError(t, err)
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("bob", protocol.SideFalse, 100, 2))
	require.NoError(t, err)

	_, err = h.engine.Claim(ctx, now, "pool-1", "alice")
	assert.ErrorIs(t, err, ErrState, "no claims while open")

	_, err = h.engine.Expire(ctx, now.Add(time.Hour), "pool-1")
	require.NoError(t, err)

	payout, err := h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "300", payout.String(), "sole winner refunds 200 and takes the full 100 forfeit")

	_, err = h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "alice")
	assert.ErrorIs(t, err, ErrState, "second claim is refused")

	_, err = h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "bob")
	assert.ErrorIs(t, err, ErrState, "losing side has no entitlement")

	_, err = h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "nobody")
	assert.ErrorIs(t, err, ErrValidation, "unknown voter")

	assert.Equal(t, "0", h.custody.balance().String(), "alice's payout drains the whole escrow")
}

func TestClaim_ConservationAndOrderIndependence(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 300, 1))
	require.NoError(t, err)
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("bob", protocol.SideTrue, 100, 2))
	require.NoError(t, err)
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("carol", protocol.SideFalse, 150, 3))
	require.NoError(t, err)

	_, err = h.engine.Expire(ctx, now.Add(time.Hour), "pool-1")
	require.NoError(t, err)

	// Entitlements previewed before any claim equal the amounts paid out:
	// the denominator covers all winning votes, claimed or not.
	aliceWant, err := h.engine.Entitlement("pool-1", "alice")
	require.NoError(t, err)
	bobWant, err := h.engine.Entitlement("pool-1", "bob")
	require.NoError(t, err)

	bobGot, err := h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "bob")
	require.NoError(t, err)
	aliceGot, err := h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "alice")
	require.NoError(t, err)

	assert.Equal(t, aliceWant.String(), aliceGot.String())
	assert.Equal(t, bobWant.String(), bobGot.String())

	// Refund floor and conservation.
	assert.True(t, aliceGot.Cmp(big.NewInt(300)) >= 0, "winner at least refunds stake")
	assert.True(t, bobGot.Cmp(big.NewInt(100)) >= 0, "winner at least refunds stake")

	total := new(big.Int).Add(aliceGot, bobGot)
	assert.True(t, total.Cmp(big.NewInt(550)) <= 0, "claims never exceed deposits")

	snap, err := h.engine.Snapshot("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "300", snap.StakeTrue.String())
	assert.Equal(t, "150", snap.StakeFalse.String())
}

func TestClaim_TransferFailureRollsBack(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 100, 1))
	require.NoError(t, err)
	_, err = h.engine.Expire(ctx, now.Add(time.Hour), "pool-1")
	require.NoError(t, err)

	h.custody.failOut = true
	_, err = h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "alice")
	assert.ErrorIs(t, err, ErrValidation)

	// The entitlement survives the failed transfer and pays out on retry.
	h.custody.failOut = false
	payout, err := h.engine.Claim(ctx, now.Add(time.Hour), "pool-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "100", payout.String())
}

func TestPauseBlocksVotes(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	h.engine.Pause()
	assert.True(t, h.engine.Paused())

	_, err := h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 10, 1))
	assert.ErrorIs(t, err, ErrState)

	h.engine.Resume()
	_, err = h.engine.CastVote(ctx, now, "pool-1", voteReq("alice", protocol.SideTrue, 10, 1))
	assert.NoError(t, err)
}

func TestUpgradeShaping(t *testing.T) {
	h := newTestHarness(t, nil)
	require.Equal(t, 1, h.engine.ShapingVersion())

	next, err := shaping.NewTable(2, [shaping.Intervals + 1]int64{0, 4, 9, 14, 19, 25, 31, 37, 44, 52, 100})
	require.NoError(t, err)

	err = h.engine.UpgradeShaping(next)
	assert.ErrorIs(t, err, ErrCoefficientsLocked, "upgrade outside a pause window is refused")
	assert.Equal(t, 1, h.engine.ShapingVersion())

	h.engine.Pause()

	stale, err := shaping.NewTable(1, [shaping.Intervals + 1]int64{0, 4, 9, 14, 19, 25, 31, 37, 44, 52, 100})
	require.NoError(t, err)
	err = h.engine.UpgradeShaping(stale)
	assert.ErrorIs(t, err, ErrValidation, "version must strictly advance")

	require.NoError(t, h.engine.UpgradeShaping(next))
	assert.Equal(t, 2, h.engine.ShapingVersion())

	h.engine.Resume()
}

func TestBiasDeterminism(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	req := voteReq("alice", protocol.SideTrue, 100, 42)
	preview := h.engine.BiasPreview(req.Credential, req.Claim, req.Voter, "pool-1")

	v, err := h.engine.CastVote(ctx, now, "pool-1", req)
	require.NoError(t, err)
	assert.Equal(t, preview, v.Bias, "recorded bias matches the preview for the same tuple")

	for i := 0; i < 10; i++ {
		assert.Equal(t, preview, h.engine.BiasPreview(req.Credential, req.Claim, req.Voter, "pool-1"))
	}
}

func TestBiasDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("distribution sampling is slow")
	}

	h := newTestHarness(t, nil)

	const samples = 100000
	var sum int64
	var flagged int
	for i := uint64(0); i < samples; i++ {
		bias := h.engine.BiasPreview(credential(i), testClaim, "voter", "pool-1")
		require.GreaterOrEqual(t, bias, int64(0))
		require.LessOrEqual(t, bias, int64(scoring.BiasMax))
		sum += bias
		if scoring.BiasFlagged(bias, scoring.DefaultFlagThreshold) {
			flagged++
		}
	}

	mean := float64(sum) / samples
	assert.InDelta(t, 28.0, mean, 2.0, "population mean sits near the target")

	tail := float64(flagged) / samples
	assert.Greater(t, tail, 0.08, "flagged tail not collapsed")
	assert.Less(t, tail, 0.14, "flagged tail not inflated")
}

func TestSnapshotConcurrentWithVotes(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	h.openPool(t, "pool-1", now, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			voter := crypto.VoterID(string(rune('a' + n)))
			_, err := h.engine.CastVote(ctx, now, "pool-1",
				voteReq(voter, protocol.SideTrue, 10, uint64(n+1)))
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Snapshot("pool-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := h.engine.Snapshot("pool-1")
	require.NoError(t, err)
	assert.Equal(t, 8, snap.VoteCount)
	assert.Equal(t, "80", snap.StakeTrue.String())
}
