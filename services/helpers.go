package services

import (
	"math/big"

	"github.com/DBYGuy/truthforge/protocol"
)

// protocolSide converts a stored side column back to a protocol Side,
// defaulting to false on anything out of range.
func protocolSide(v int) protocol.Side {
	side := protocol.Side(v)
	if !side.Valid() {
		return protocol.SideFalse
	}
	return side
}

// newBigInt parses a decimal string into a big.Int, returning false on
// malformed input.
func newBigInt(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}
