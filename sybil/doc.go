// Package sybil blocks repeat participation and bounds resource abuse.
//
// Two independent mechanisms:
//
//   - Nullifiers: each (credential, claim, voter) derives a one-time
//     nullifier plus a pool-bound domain nullifier. The registry consumes
//     both atomically; a second attempt fails with ErrReplay. The
//     registry is append-only and entries are permanent.
//   - Rate limiting: a per-voter sliding window (in-memory or Redis)
//     refuses operations beyond a configured count per window with
//     ErrRateLimited, regardless of nullifier state.
//
// The guard itself performs no ledger mutation. The consensus engine
// validates a vote fully before consuming its nullifiers, and consumes
// them before the dependent ledger write, so a reentrant caller can
// neither double-register nor observe a half-applied vote.
package sybil
