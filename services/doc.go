// Package services wires the consensus engine to the outside world:
// proof validation, stake custody, persistence, event publishing and the
// HTTP API.
package services
