package services

import (
	"time"

	"github.com/DBYGuy/truthforge/protocol"
)

// CreatePoolRequest opens a consensus pool for a claim fingerprint.
type CreatePoolRequest struct {
	// Claim is the hex-encoded 32-byte claim hash.
	Claim string `json:"claim"`

	// TTLSeconds is the voting window; zero uses the deployment default.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

// VoteSubmission is the wire form of a vote. Credential travels as hex
// and never appears in logs or responses.
type VoteSubmission struct {
	Voter      string        `json:"voter"`
	Side       protocol.Side `json:"side"`
	Stake      string        `json:"stake"`
	Credential string        `json:"credential"`
	Tier       int           `json:"tier"`
	Relevance  int64         `json:"relevance"`
}

// VoteResponse reports the scored, recorded vote.
type VoteResponse struct {
	Pool        string        `json:"pool"`
	Voter       string        `json:"voter"`
	Side        protocol.Side `json:"side"`
	Stake       string        `json:"stake"`
	Bias        int64         `json:"bias"`
	Weight      int64         `json:"weight"`
	Gravity     int64         `json:"gravity"`
	BiasFlagged bool          `json:"bias_flagged"`
	CastAt      time.Time     `json:"cast_at"`
}

// ClaimRequest asks for a voter's payout from a closed pool.
type ClaimRequest struct {
	Voter string `json:"voter"`
}

// ClaimResponse reports the settled payout.
type ClaimResponse struct {
	Pool   string `json:"pool"`
	Voter  string `json:"voter"`
	Payout string `json:"payout"`
}

// EntitlementResponse previews a claimable amount without settling it.
type EntitlementResponse struct {
	Pool        string `json:"pool"`
	Voter       string `json:"voter"`
	Entitlement string `json:"entitlement"`
}

// BiasPreviewResponse reports the deterministic bias for a tuple.
type BiasPreviewResponse struct {
	Bias        int64 `json:"bias"`
	BiasFlagged bool  `json:"bias_flagged"`
}

// PoolListResponse lists known pool ids.
type PoolListResponse struct {
	Pools []string `json:"pools"`
}

// ShapingUpgradeRequest installs a new coefficient table. The engine
// must already be paused.
type ShapingUpgradeRequest struct {
	Version int     `json:"version"`
	Knots   []int64 `json:"knots"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
