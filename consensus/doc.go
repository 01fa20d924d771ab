// Package consensus implements the stake-weighted binary consensus ledger:
// pools, votes, resolution, expiry and claim settlement.
//
// The engine is the single mutation path. Each pool is serialized behind
// its own lock, every operation either fully commits or fully rejects,
// and all time-sensitive checks take the current instant as an explicit
// argument so behavior is reproducible under simulated clocks.
package consensus
