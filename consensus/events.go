package consensus

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
)

// EventType names an accepted ledger transition.
type EventType string

const (
	EventVoteRecorded  EventType = "vote_recorded"
	EventPoolResolved  EventType = "pool_resolved"
	EventPoolExpired   EventType = "pool_expired"
	EventRewardClaimed EventType = "reward_claimed"
)

// Event describes one accepted transition for external indexing and
// monitoring. Events are not required for correctness; a lost event never
// corrupts ledger state.
type Event struct {
	ID    string         `json:"id"`
	Type  EventType      `json:"type"`
	Pool  crypto.PoolID  `json:"pool"`
	Voter crypto.VoterID `json:"voter,omitempty"`
	Side  protocol.Side  `json:"side"`
	Stake *big.Int       `json:"stake,omitempty"`

	Bias    int64 `json:"bias,omitempty"`
	Weight  int64 `json:"weight,omitempty"`
	Gravity int64 `json:"gravity,omitempty"`

	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// newEvent stamps a fresh event id.
func newEvent(t EventType, pool crypto.PoolID, state State, at time.Time) *Event {
	return &Event{
		ID:    uuid.NewString(),
		Type:  t,
		Pool:  pool,
		State: state.String(),
		At:    at,
	}
}

// EventSink receives accepted-transition events.
type EventSink interface {
	Emit(ctx context.Context, event *Event)
}

// SlogSink logs every event through a structured logger. It is the
// default sink when no other is configured.
type SlogSink struct {
	Log *slog.Logger
}

// Emit writes the event as one structured log line.
func (s *SlogSink) Emit(_ context.Context, event *Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("ledger event",
		"event_id", event.ID,
		"type", string(event.Type),
		"pool", string(event.Pool),
		"voter", string(event.Voter),
		"side", event.Side.String(),
		"stake", stakeString(event.Stake),
		"bias", event.Bias,
		"weight", event.Weight,
		"gravity", event.Gravity,
		"state", event.State,
	)
}

func stakeString(stake *big.Int) string {
	if stake == nil {
		return "0"
	}
	return stake.String()
}

// MemorySink collects events in memory. Used in tests and by status
// endpoints that expose recent activity.
type MemorySink struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event.
func (s *MemorySink) Emit(_ context.Context, event *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all collected events.
func (s *MemorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

// Emit delivers the event to every sink in order.
func (m MultiSink) Emit(ctx context.Context, event *Event) {
	for _, sink := range m {
		sink.Emit(ctx, event)
	}
}
