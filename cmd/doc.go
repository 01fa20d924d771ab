// Package cmd contains the truthforge command-line binaries.
//
// Binaries:
//
//   - truthforged: the consensus service daemon exposing the pool API
//   - shapectl: inspects and previews bias shaping coefficient tables
//
// Shared helpers for configuration and key handling live in cmd/common.
package cmd
