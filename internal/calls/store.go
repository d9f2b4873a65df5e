package calls

import (
	"context"
	"time"
)

// Store is the persistence contract for the call ledger.
//
// Update is a conditional write: it persists the row only while the stored
// status still equals expect, and reports whether it matched. Services use it
// as an optimistic-concurrency guard on state transitions; a false return
// means another event already moved the call and the caller must re-read.
type Store interface {
	Create(ctx context.Context, l Ledger) error
	Get(ctx context.Context, id string) (Ledger, error)
	Update(ctx context.Context, l Ledger, expect Status) (bool, error)

	// ActiveByParticipant returns the participant's non-terminal call, if any.
	// At most one can exist thanks to the on-call flag.
	ActiveByParticipant(ctx context.Context, userID string) (Ledger, bool, error)

	// ListStale returns calls stuck in pending/ringing/accepted since before
	// cutoff. Input to the staleness sweep.
	ListStale(ctx context.Context, cutoff time.Time) ([]Ledger, error)

	ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]Ledger, error)
}
