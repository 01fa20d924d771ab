package consensus

import (
	"errors"

	"github.com/DBYGuy/truthforge/sybil"
)

// The error taxonomy every ledger operation maps to. All four are
// synchronous, caller-visible rejections that leave no partial state;
// none are retried internally.
var (
	// ErrValidation marks malformed or out-of-range input: bad tier, bad
	// relevance, stake below minimum, unknown voter, invalid signature.
	ErrValidation = errors.New("validation failed")

	// ErrReplay marks a nullifier that has already been consumed.
	ErrReplay = sybil.ErrReplay

	// ErrState marks an operation invalid for the pool's current state or
	// time window: voting after close, claiming before close, expiring an
	// open pool early.
	ErrState = errors.New("invalid pool state for operation")

	// ErrResourceExhausted marks a voter exceeding the sliding-window
	// rate limit. The window length implies the retry-after.
	ErrResourceExhausted = sybil.ErrRateLimited

	// ErrCoefficientsLocked is the fatal configuration class: any attempt
	// to swap the shaping table outside an explicit paused upgrade window
	// is refused unconditionally, never silently ignored.
	ErrCoefficientsLocked = errors.New("shaping coefficients locked: engine not paused")
)
