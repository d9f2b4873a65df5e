package coins

import "time"

// Account is a per-user coin balance pair.
//
// Money invariants:
// - Balance is spendable; LockedBalance is earmarked for exactly one in-flight
//   call and is neither spendable nor yet the receiver's.
// - Every balance change must have a corresponding Transaction row.
// - OnCall is the authoritative "already on a call" flag, mutated only inside
//   the same conditional statements that move money (no separate read-check).
type Account struct {
	UserID        string    `json:"user_id" db:"user_id"`
	Balance       int64     `json:"balance" db:"balance"`
	LockedBalance int64     `json:"locked_balance" db:"locked_balance"`
	OnCall        bool      `json:"on_call" db:"on_call"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable append-only entry.
//
// Money invariant: any balance change MUST have a corresponding transaction.
// Idempotency: (call_id, type) is unique, so a retried billing step is a no-op.
type Transaction struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Type TransactionType `json:"type" db:"type"`

	// Amount is signed in coins. Credits are positive, debits are negative.
	Amount int64 `json:"amount" db:"amount"`

	// CallID links the transaction to the call that caused it.
	CallID string `json:"call_id" db:"call_id"`

	// IdempotencyKey is derived from (call_id, type); required for safe retries.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TransactionType string

const (
	// TransactionTypeCallDebit finalizes the caller's spend when a call connects.
	TransactionTypeCallDebit TransactionType = "call_debit"
	// TransactionTypeCallCredit pays the receiver when a call connects.
	TransactionTypeCallCredit TransactionType = "call_credit"
	// TransactionTypeCallRefund restores locked coins for a call that never connected.
	TransactionTypeCallRefund TransactionType = "call_refund"
)

// IdempotencyKey builds the unique retry key for a billing step.
func IdempotencyKey(callID string, typ TransactionType) string {
	return callID + ":" + string(typ)
}
