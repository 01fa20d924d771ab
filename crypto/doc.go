// Package crypto provides the deterministic derivations underpinning the
// TruthForge consensus protocol.
//
// This package implements:
//
//   - Entropy derivation: a pure mapping from (credential, claim, voter,
//     pool) identifiers to a uniformly distributed integer, used as the
//     input to the bias shaping function
//   - Nullifier derivation: claim-scoped one-time identifiers plus
//     pool-bound domain nullifiers (HKDF) for sybil resistance
//   - Ed25519 key and signature types for authenticating privileged
//     protocol messages
//
// # Determinism
//
// Every derivation in this package is a pure function of its inputs. None
// of them read the clock, randomness, or any other mutable environment
// state; this is a consensus requirement, not an implementation detail.
// All derivations carry fixed domain-separation tags so that values from
// one context can never collide with another.
//
// Key generation (GenerateKeyPair) is the only operation that consumes
// system randomness, and it is used exclusively for operator identities,
// never inside the scoring pipeline.
package crypto
