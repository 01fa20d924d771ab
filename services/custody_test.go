package services

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DBYGuy/truthforge/consensus"
	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/sybil"
)

func TestMemoryCustody(t *testing.T) {
	ctx := context.Background()
	custody := NewMemoryCustody()

	custody.Deposit("alice", big.NewInt(500))
	assert.Equal(t, "500", custody.Balance("alice").String())

	require.NoError(t, custody.TransferIn(ctx, "alice", big.NewInt(200)))
	assert.Equal(t, "300", custody.Balance("alice").String())
	assert.Equal(t, "200", custody.Escrowed().String())

	err := custody.TransferIn(ctx, "alice", big.NewInt(301))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "300", custody.Balance("alice").String(), "failed escrow moves nothing")

	require.NoError(t, custody.TransferOut(ctx, "alice", big.NewInt(200)))
	assert.Equal(t, "500", custody.Balance("alice").String())
	assert.Equal(t, "0", custody.Escrowed().String())

	err = custody.TransferOut(ctx, "alice", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds, "escrow cannot go negative")
}

func TestMemoryCustody_UnknownVoterStartsEmpty(t *testing.T) {
	custody := NewMemoryCustody()
	assert.Equal(t, "0", custody.Balance("nobody").String())
	err := custody.TransferIn(context.Background(), "nobody", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCastVote_InsufficientFundsSurvivesWrapping(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := protocol.DefaultConfig()
	cfg.VoteDelay = 0

	custody := NewMemoryCustody()
	guard := NewGuard(cfg, sybil.NewMemoryRegistry(), nil, log)
	engine, err := consensus.NewEngine(cfg, OpenValidator{}, custody, guard, nil, log)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	claim := crypto.ClaimHash{0xCC}
	_, err = engine.CreatePool(now, "pool-funds", claim, now.Add(time.Hour), nil)
	require.NoError(t, err)

	// No deposit for dave, so escrow must refuse the stake.
	_, err = engine.CastVote(context.Background(), now, "pool-funds",
		storeVoteRequest("dave", protocol.SideTrue, claim, 9))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds, "custody cause stays in the chain")
	assert.ErrorIs(t, err, consensus.ErrValidation)
}
