// Package protocol defines the shared vocabulary of the TruthForge
// consensus protocol: configuration parameters, binary vote sides,
// request and signal message types, and Ed25519-authenticated message
// envelopes.
//
// Types here are plain values with no behavior beyond validation and
// (de)serialization. The consensus engine consumes them; nothing in this
// package mutates ledger state.
package protocol
