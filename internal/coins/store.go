package coins

import (
	"context"
	"time"
)

// Store is the persistence contract for coin accounts and transactions.
//
// Every mutating method that can lose a race returns a matched bool instead of
// an error: zero matched rows means the conditional update found the account
// in a state that forbids the mutation. Callers decide whether that is a
// user-facing rejection or an idempotent no-op.
type Store interface {
	Get(ctx context.Context, userID string) (Account, error)

	// LockForCall atomically, in one unit of work:
	//   caller:   balance -= amount, locked_balance += amount, on_call = true
	//   receiver: on_call = true
	// guarded by (caller.balance >= amount AND NOT caller.on_call AND NOT
	// receiver.on_call). All-or-nothing; false means the race was lost.
	LockForCall(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error)

	// Settle clears the caller's locked amount and credits the receiver's
	// spendable balance. The caller's spendable balance does not move again;
	// it was already debited at lock time.
	Settle(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error)

	// Refund restores the caller's locked amount to spendable.
	Refund(ctx context.Context, callerID string, amount int64, now time.Time) (bool, error)

	SetOnCall(ctx context.Context, on bool, now time.Time, userIDs ...string) error

	AppendTransaction(ctx context.Context, t Transaction) error
	FindTransactionByIdempotency(ctx context.Context, key string) (Transaction, bool, error)
	ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error)
}
