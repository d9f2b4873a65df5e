package calls

import "context"

// EventType names a lifecycle transition the service publishes.
type EventType string

const (
	// EventSwept fires when the staleness sweep force-ends a call the relay
	// lost track of (crashed process, dropped timers).
	EventSwept EventType = "call.swept"
)

// Event is a committed ledger transition.
type Event struct {
	Type EventType
	Call Ledger
}

// Publisher receives lifecycle events after the transition has been persisted.
//
// The signaling relay subscribes here instead of the service importing the
// relay; only transitions the relay did not itself drive are published, so
// the relay never double-notifies for its own handler flows.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher discards events. Useful default for tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
