package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; do not block billing flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// CallID links the record to a call ledger row (if applicable).
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// ActorUserID is the participant or admin causing the event. Empty for
	// system-driven events (timers, sweeps).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallCreated  EventType = "call_created"
	EventTypeCallBilled   EventType = "call_billed"
	EventTypeCallRefunded EventType = "call_refunded"
	EventTypeCallSwept    EventType = "call_swept"
	EventTypeAdminAction  EventType = "admin_action"
)
