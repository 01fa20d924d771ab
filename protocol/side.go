package protocol

import "fmt"

// Side is the binary label a vote backs.
type Side int

const (
	// SideFalse backs the claim being false.
	SideFalse Side = iota
	// SideTrue backs the claim being true.
	SideTrue
)

// String returns the side name for logging and events.
func (s Side) String() string {
	switch s {
	case SideFalse:
		return "false"
	case SideTrue:
		return "true"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether the side is one of the two binary labels.
func (s Side) Valid() bool {
	return s == SideFalse || s == SideTrue
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideTrue {
		return SideFalse
	}
	return SideTrue
}
