package coins

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"paircall-platform/pkg/utils"
)

// PostgresStore persists coin accounts and transactions.
//
// Assumed schema:
//   coin_accounts(user_id TEXT PRIMARY KEY, balance BIGINT, locked_balance BIGINT,
//                 on_call BOOL, updated_at TIMESTAMPTZ)
//   coin_transactions(id TEXT PRIMARY KEY, user_id TEXT, type TEXT, amount BIGINT,
//                     call_id TEXT, idempotency_key TEXT UNIQUE, created_at TIMESTAMPTZ)
//
// The caller-side conditional UPDATE in LockForCall is the double-spend guard;
// per-row atomicity of a single UPDATE is all the lock step relies on. The
// receiver flag rides in the same transaction, which is strictly stronger.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Get(ctx context.Context, userID string) (Account, error) {
	const q = `
SELECT user_id, balance, locked_balance, on_call, updated_at
FROM coin_accounts
WHERE user_id = $1
`
	var a Account
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&a.UserID,
		&a.Balance,
		&a.LockedBalance,
		&a.OnCall,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (s *PostgresStore) LockForCall(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error) {
	matched := false
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const lockCaller = `
UPDATE coin_accounts
SET balance = balance - $2,
    locked_balance = locked_balance + $2,
    on_call = true,
    updated_at = $3
WHERE user_id = $1 AND balance >= $2 AND on_call = false
`
		res, err := tx.ExecContext(ctx, lockCaller, callerID, amount, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errLockRaceLost
		}

		const flagReceiver = `
UPDATE coin_accounts
SET on_call = true, updated_at = $2
WHERE user_id = $1 AND on_call = false
`
		res, err = tx.ExecContext(ctx, flagReceiver, receiverID, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errLockRaceLost
		}

		matched = true
		return nil
	})
	if errors.Is(err, errLockRaceLost) {
		return false, nil
	}
	return matched, err
}

func (s *PostgresStore) Settle(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error) {
	matched := false
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const releaseLock = `
UPDATE coin_accounts
SET locked_balance = locked_balance - $2, updated_at = $3
WHERE user_id = $1 AND locked_balance >= $2
`
		res, err := tx.ExecContext(ctx, releaseLock, callerID, amount, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errLockRaceLost
		}

		const creditReceiver = `
UPDATE coin_accounts
SET balance = balance + $2, updated_at = $3
WHERE user_id = $1
`
		res, err = tx.ExecContext(ctx, creditReceiver, receiverID, amount, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errLockRaceLost
		}

		matched = true
		return nil
	})
	if errors.Is(err, errLockRaceLost) {
		return false, nil
	}
	return matched, err
}

func (s *PostgresStore) Refund(ctx context.Context, callerID string, amount int64, now time.Time) (bool, error) {
	const q = `
UPDATE coin_accounts
SET balance = balance + $2,
    locked_balance = locked_balance - $2,
    updated_at = $3
WHERE user_id = $1 AND locked_balance >= $2
`
	res, err := s.db.ExecContext(ctx, q, callerID, amount, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) SetOnCall(ctx context.Context, on bool, now time.Time, userIDs ...string) error {
	const q = `
UPDATE coin_accounts
SET on_call = $2, updated_at = $3
WHERE user_id = ANY($1)
`
	_, err := s.db.ExecContext(ctx, q, userIDs, on, now)
	return err
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, t Transaction) error {
	const q = `
INSERT INTO coin_transactions (id, user_id, type, amount, call_id, idempotency_key, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.UserID,
		t.Type,
		t.Amount,
		t.CallID,
		t.IdempotencyKey,
		t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) FindTransactionByIdempotency(ctx context.Context, key string) (Transaction, bool, error) {
	const q = `
SELECT id, user_id, type, amount, call_id, idempotency_key, created_at
FROM coin_transactions
WHERE idempotency_key = $1
LIMIT 1
`
	var t Transaction
	err := s.db.QueryRowContext(ctx, q, key).Scan(
		&t.ID,
		&t.UserID,
		&t.Type,
		&t.Amount,
		&t.CallID,
		&t.IdempotencyKey,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	const q = `
SELECT id, user_id, type, amount, call_id, idempotency_key, created_at
FROM coin_transactions
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := s.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.CallID, &t.IdempotencyKey, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// errLockRaceLost is an internal sentinel used to roll back a conditional
// update that matched zero rows without surfacing a real error.
var errLockRaceLost = errors.New("coins: conditional update matched no rows")
