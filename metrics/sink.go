package metrics

import (
	"context"

	"github.com/DBYGuy/truthforge/consensus"
)

// Sink feeds accepted ledger transitions into the Prometheus counters.
// It implements consensus.EventSink and is typically fanned out next to
// the persistence and broker sinks.
type Sink struct{}

// Emit updates the counters for one event.
func (Sink) Emit(_ context.Context, event *consensus.Event) {
	switch event.Type {
	case consensus.EventVoteRecorded:
		votesRecorded.WithLabelValues(event.Side.String()).Inc()
		biasObserved.Observe(float64(event.Bias))
	case consensus.EventPoolResolved:
		poolsClosed.WithLabelValues("early-resolve").Inc()
	case consensus.EventPoolExpired:
		poolsClosed.WithLabelValues("expiry").Inc()
	case consensus.EventRewardClaimed:
		claimsSettled.Inc()
	}
}
