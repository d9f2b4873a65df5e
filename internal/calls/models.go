package calls

import (
	"time"
)

// Ledger is the durable record of one call attempt.
//
// Identity is immutable after creation; only status, billing and timestamp
// fields mutate, monotonically toward a terminal status. Rows are never
// deleted; the ledger is the audit trail.
//
// Money invariant reminder: CoinAmount is frozen at creation and is the only
// amount billing ever operates on, even if platform settings change mid-call.
type Ledger struct {
	ID string `json:"id" db:"id"`

	// CallerID is always the coin-spending party; ReceiverID always earns.
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	// ChatID references the pre-existing conversation between the two
	// participants. A call must never be created without one.
	ChatID string `json:"chat_id" db:"chat_id"`

	Status        Status        `json:"status" db:"status"`
	BillingStatus BillingStatus `json:"billing_status" db:"billing_status"`

	CoinAmount          int64 `json:"coin_amount" db:"coin_amount"`
	CallDurationSeconds int   `json:"call_duration_seconds" db:"duration_seconds"`

	// RemainingSeconds is persisted when the call is interrupted so a rejoin
	// can resume with the correct entitlement.
	RemainingSeconds int `json:"remaining_seconds" db:"remaining_seconds"`

	// Lifecycle timestamps, each set at most once.
	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	EndReason Reason `json:"end_reason,omitempty" db:"end_reason"`

	// RejoinCount increments on every successful rejoin by any participant.
	RejoinCount int `json:"rejoin_count" db:"rejoin_count"`

	// RejoinedUserIDs holds the participants who consumed their one allowed
	// rejoin. Set semantics: a user id appears at most once.
	RejoinedUserIDs []string `json:"rejoined_user_ids,omitempty" db:"rejoined_user_ids"`
}

// HasRejoined reports whether the participant already used their rejoin.
func (l Ledger) HasRejoined(userID string) bool {
	for _, id := range l.RejoinedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Participant reports whether userID is on this call.
func (l Ledger) Participant(userID string) bool {
	return userID == l.CallerID || userID == l.ReceiverID
}

// Other returns the peer of userID on this call.
func (l Ledger) Other(userID string) string {
	if userID == l.CallerID {
		return l.ReceiverID
	}
	return l.CallerID
}

type Status string

const (
	StatusPending     Status = "pending"
	StatusRinging     Status = "ringing"
	StatusAccepted    Status = "accepted"
	StatusConnected   Status = "connected"
	StatusInterrupted Status = "interrupted"
	StatusEnded       Status = "ended"
	StatusRejected    Status = "rejected"
	StatusMissed      Status = "missed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusMissed, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type BillingStatus string

const (
	BillingLocked   BillingStatus = "locked"
	BillingCharged  BillingStatus = "charged"
	BillingRefunded BillingStatus = "refunded"
)

// Reason captures why a terminal (or semi-terminal) state was reached.
type Reason string

const (
	ReasonRejected             Reason = "rejected"
	ReasonTimeout              Reason = "timeout"
	ReasonCancelled            Reason = "cancelled"
	ReasonConnectionFailed     Reason = "connection_failed"
	ReasonTimerExpired         Reason = "timer_expired"
	ReasonCallerEnded          Reason = "caller_ended"
	ReasonReceiverEnded        Reason = "receiver_ended"
	ReasonCallerDisconnected   Reason = "caller_disconnected"
	ReasonReceiverDisconnected Reason = "receiver_disconnected"
	ReasonInterruptionExpired  Reason = "interruption_expired"
)

// statusForReason maps an end reason to the terminal status it produces.
// Anything not named here ends the call as a normally completed "ended".
func statusForReason(r Reason) Status {
	switch r {
	case ReasonRejected:
		return StatusRejected
	case ReasonTimeout:
		return StatusMissed
	case ReasonCancelled:
		return StatusCancelled
	case ReasonConnectionFailed:
		return StatusFailed
	default:
		return StatusEnded
	}
}
