package coins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paircall-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAccountNotFound      = errors.New("coins: account not found")
	ErrLockFailed           = errors.New("coins: failed to lock coins")
	ErrDuplicateTransaction = errors.New("coins: duplicate transaction")
)

// Service implements the coin-account primitives the call engine consumes:
// lock, settle (release-to-receiver), refund, and on-call flag management.
//
// Money invariants:
// - The lock step is guarded by a single conditional update; a lost race is a
//   clean rejection, never a partial move.
// - Settle and Refund are idempotent per call via the transaction ledger's
//   (call_id, type) key: a retried step that already posted is a no-op.
// - Exactly one of settle/refund can post for a given call, because both drain
//   the same locked amount and the second conditional update matches nothing.
//
// Redis mirrors the on-call flag as a per-user call slot so the relay can
// cheaply reject "already on a call" without a DB round-trip. The DB flag
// remains authoritative.
type Service struct {
	store   Store
	rdb     *redis.Client
	slotTTL time.Duration
	clock   func() time.Time
}

func NewService(store Store, rdb *redis.Client, slotTTL time.Duration) *Service {
	if slotTTL <= 0 {
		slotTTL = 15 * time.Minute
	}
	return &Service{store: store, rdb: rdb, slotTTL: slotTTL, clock: time.Now}
}

func (s *Service) Balance(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, ErrAccountNotFound
	}
	return s.store.Get(ctx, userID)
}

// Lock earmarks amount from the caller for the given call and flags both
// participants on-call. All-or-nothing; ErrLockFailed means a concurrent call
// or balance change won the race and nothing moved.
func (s *Service) Lock(ctx context.Context, callID, callerID, receiverID string, amount int64) error {
	if callID == "" || callerID == "" || receiverID == "" || amount <= 0 {
		return ErrLockFailed
	}

	// Fast path: claim redis call slots first so a doomed request never hits
	// the accounts table. Skipped when redis is not wired (tests).
	if s.rdb != nil {
		for _, uid := range []string{callerID, receiverID} {
			ok, err := utils.AcquireCallSlot(ctx, s.rdb, uid, callID, s.slotTTL)
			if err != nil {
				return fmt.Errorf("coins: call slot acquire: %w", err)
			}
			if !ok {
				s.releaseSlots(ctx, callID, callerID, receiverID)
				return ErrLockFailed
			}
		}
	}

	ok, err := s.store.LockForCall(ctx, callerID, receiverID, amount, s.clock().UTC())
	if err != nil {
		s.releaseSlots(ctx, callID, callerID, receiverID)
		return err
	}
	if !ok {
		s.releaseSlots(ctx, callID, callerID, receiverID)
		return ErrLockFailed
	}
	return nil
}

// Settle finalizes billing for a connected call: the caller's locked coins are
// released (spendable was already debited at lock time) and the receiver is
// credited. Writes the complementary debit/credit transaction pair before
// returning. Idempotent per call.
func (s *Service) Settle(ctx context.Context, callID, callerID, receiverID string, amount int64) error {
	debitKey := IdempotencyKey(callID, TransactionTypeCallDebit)
	if _, done, err := s.store.FindTransactionByIdempotency(ctx, debitKey); err != nil {
		return err
	} else if done {
		return nil
	}

	now := s.clock().UTC()
	ok, err := s.store.Settle(ctx, callerID, receiverID, amount, now)
	if err != nil {
		return err
	}
	if !ok {
		// Locked amount already drained: a concurrent settle or refund won.
		return nil
	}

	if err := s.store.AppendTransaction(ctx, Transaction{
		ID:             uuid.NewString(),
		UserID:         callerID,
		Type:           TransactionTypeCallDebit,
		Amount:         -amount,
		CallID:         callID,
		IdempotencyKey: debitKey,
		CreatedAt:      now,
	}); err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		return err
	}
	if err := s.store.AppendTransaction(ctx, Transaction{
		ID:             uuid.NewString(),
		UserID:         receiverID,
		Type:           TransactionTypeCallCredit,
		Amount:         amount,
		CallID:         callID,
		IdempotencyKey: IdempotencyKey(callID, TransactionTypeCallCredit),
		CreatedAt:      now,
	}); err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		return err
	}
	return nil
}

// Refund restores the caller's locked coins for a call that never connected.
// Idempotent per call.
func (s *Service) Refund(ctx context.Context, callID, callerID string, amount int64) error {
	refundKey := IdempotencyKey(callID, TransactionTypeCallRefund)
	if _, done, err := s.store.FindTransactionByIdempotency(ctx, refundKey); err != nil {
		return err
	} else if done {
		return nil
	}

	now := s.clock().UTC()
	ok, err := s.store.Refund(ctx, callerID, amount, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := s.store.AppendTransaction(ctx, Transaction{
		ID:             uuid.NewString(),
		UserID:         callerID,
		Type:           TransactionTypeCallRefund,
		Amount:         amount,
		CallID:         callID,
		IdempotencyKey: refundKey,
		CreatedAt:      now,
	}); err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		return err
	}
	return nil
}

// ClearOnCall drops both participants' on-call flags and their redis slots.
func (s *Service) ClearOnCall(ctx context.Context, callID string, userIDs ...string) error {
	if err := s.store.SetOnCall(ctx, false, s.clock().UTC(), userIDs...); err != nil {
		return err
	}
	if s.rdb != nil {
		for _, uid := range userIDs {
			_ = utils.ReleaseCallSlot(ctx, s.rdb, uid, callID)
		}
	}
	return nil
}

// MarkOnCall re-flags participants for a rejoin. Unconditional: the rejoin
// decision (rejoin cap, interrupted status) has already been made upstream.
func (s *Service) MarkOnCall(ctx context.Context, callID string, userIDs ...string) error {
	if err := s.store.SetOnCall(ctx, true, s.clock().UTC(), userIDs...); err != nil {
		return err
	}
	if s.rdb != nil {
		for _, uid := range userIDs {
			_, _ = utils.AcquireCallSlot(ctx, s.rdb, uid, callID, s.slotTTL)
		}
	}
	return nil
}

// ListTransactions exposes the append-only ledger for reporting.
func (s *Service) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, userID, from, to)
}

func (s *Service) releaseSlots(ctx context.Context, callID string, userIDs ...string) {
	if s.rdb == nil {
		return
	}
	for _, uid := range userIDs {
		_ = utils.ReleaseCallSlot(ctx, s.rdb, uid, callID)
	}
}
