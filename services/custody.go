package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/DBYGuy/truthforge/crypto"
)

// ErrInsufficientFunds is returned when a voter's free balance cannot
// cover a stake escrow.
var ErrInsufficientFunds = errors.New("insufficient funds")

// MemoryCustody is an in-process custody ledger. Each voter has a free
// balance; TransferIn moves value from the free balance into escrow and
// TransferOut pays escrowed value back out. The sum of free balances and
// escrow is constant across any sequence of operations.
type MemoryCustody struct {
	mu       sync.Mutex
	balances map[crypto.VoterID]*big.Int
	escrowed *big.Int
}

// NewMemoryCustody creates an empty custody ledger.
func NewMemoryCustody() *MemoryCustody {
	return &MemoryCustody{
		balances: make(map[crypto.VoterID]*big.Int),
		escrowed: new(big.Int),
	}
}

// Deposit credits a voter's free balance. This is the on-ramp a real
// deployment would replace with token transfers.
func (c *MemoryCustody) Deposit(voter crypto.VoterID, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance(voter).Add(c.balance(voter), amount)
}

func (c *MemoryCustody) balance(voter crypto.VoterID) *big.Int {
	b, ok := c.balances[voter]
	if !ok {
		b = new(big.Int)
		c.balances[voter] = b
	}
	return b
}

// TransferIn escrows amount from the voter's free balance.
func (c *MemoryCustody) TransferIn(_ context.Context, voter crypto.VoterID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.balance(voter)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: voter %s has %s, needs %s", ErrInsufficientFunds, voter, b, amount)
	}
	b.Sub(b, amount)
	c.escrowed.Add(c.escrowed, amount)
	return nil
}

// TransferOut pays amount from escrow back to the voter's free balance.
func (c *MemoryCustody) TransferOut(_ context.Context, voter crypto.VoterID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.escrowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: escrow holds %s, asked for %s", ErrInsufficientFunds, c.escrowed, amount)
	}
	c.escrowed.Sub(c.escrowed, amount)
	c.balance(voter).Add(c.balance(voter), amount)
	return nil
}

// Balance returns a copy of the voter's free balance.
func (c *MemoryCustody) Balance(voter crypto.VoterID) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance(voter))
}

// Escrowed returns a copy of the total value currently in escrow.
func (c *MemoryCustody) Escrowed() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.escrowed)
}
