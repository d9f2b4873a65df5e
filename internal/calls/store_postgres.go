package calls

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PostgresStore persists the call ledger.
//
// Assumed schema:
//   calls(id TEXT PRIMARY KEY, caller_id TEXT, receiver_id TEXT, chat_id TEXT,
//         status TEXT, billing_status TEXT, coin_amount BIGINT,
//         duration_seconds INT, remaining_seconds INT,
//         requested_at TIMESTAMPTZ, accepted_at TIMESTAMPTZ,
//         connected_at TIMESTAMPTZ, ended_at TIMESTAMPTZ,
//         end_reason TEXT, rejoin_count INT, rejoined_user_ids TEXT)
//
// rejoined_user_ids serializes the participant set as a comma-joined string;
// the set holds at most two short ids, so a relational layout buys nothing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const ledgerColumns = `
id, caller_id, receiver_id, chat_id, status, billing_status, coin_amount,
duration_seconds, remaining_seconds, requested_at, accepted_at, connected_at,
ended_at, COALESCE(end_reason, ''), rejoin_count, COALESCE(rejoined_user_ids, '')
`

func (s *PostgresStore) Create(ctx context.Context, l Ledger) error {
	const q = `
INSERT INTO calls (
  id, caller_id, receiver_id, chat_id, status, billing_status, coin_amount,
  duration_seconds, remaining_seconds, requested_at, accepted_at, connected_at,
  ended_at, end_reason, rejoin_count, rejoined_user_ids
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
	_, err := s.db.ExecContext(ctx, q,
		l.ID,
		l.CallerID,
		l.ReceiverID,
		l.ChatID,
		l.Status,
		l.BillingStatus,
		l.CoinAmount,
		l.CallDurationSeconds,
		l.RemainingSeconds,
		l.RequestedAt,
		nullTime(l.AcceptedAt),
		nullTime(l.ConnectedAt),
		nullTime(l.EndedAt),
		string(l.EndReason),
		l.RejoinCount,
		joinIDs(l.RejoinedUserIDs),
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Ledger, error) {
	q := `SELECT ` + ledgerColumns + ` FROM calls WHERE id = $1`
	l, err := scanLedger(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ledger{}, ErrCallNotFound
		}
		return Ledger{}, err
	}
	return l, nil
}

func (s *PostgresStore) Update(ctx context.Context, l Ledger, expect Status) (bool, error) {
	const q = `
UPDATE calls
SET status = $2,
    billing_status = $3,
    remaining_seconds = $4,
    accepted_at = $5,
    connected_at = $6,
    ended_at = $7,
    end_reason = $8,
    rejoin_count = $9,
    rejoined_user_ids = $10
WHERE id = $1 AND status = $11
`
	res, err := s.db.ExecContext(ctx, q,
		l.ID,
		l.Status,
		l.BillingStatus,
		l.RemainingSeconds,
		nullTime(l.AcceptedAt),
		nullTime(l.ConnectedAt),
		nullTime(l.EndedAt),
		string(l.EndReason),
		l.RejoinCount,
		joinIDs(l.RejoinedUserIDs),
		expect,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ActiveByParticipant(ctx context.Context, userID string) (Ledger, bool, error) {
	q := `
SELECT ` + ledgerColumns + `
FROM calls
WHERE (caller_id = $1 OR receiver_id = $1)
  AND status IN ('pending','ringing','accepted','connected','interrupted')
ORDER BY requested_at DESC
LIMIT 1
`
	l, err := scanLedger(s.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ledger{}, false, nil
		}
		return Ledger{}, false, err
	}
	return l, true, nil
}

func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time) ([]Ledger, error) {
	q := `
SELECT ` + ledgerColumns + `
FROM calls
WHERE status IN ('pending','ringing','accepted')
  AND requested_at < $1
`
	return s.list(ctx, q, cutoff)
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]Ledger, error) {
	q := `
SELECT ` + ledgerColumns + `
FROM calls
WHERE (caller_id = $1 OR receiver_id = $1)
  AND requested_at >= $2 AND requested_at < $3
ORDER BY requested_at
`
	return s.list(ctx, q, userID, from, to)
}

func (s *PostgresStore) list(ctx context.Context, q string, args ...any) ([]Ledger, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(r rowScanner) (Ledger, error) {
	var l Ledger
	var accepted, connected, ended sql.NullTime
	var reason, rejoined string
	if err := r.Scan(
		&l.ID,
		&l.CallerID,
		&l.ReceiverID,
		&l.ChatID,
		&l.Status,
		&l.BillingStatus,
		&l.CoinAmount,
		&l.CallDurationSeconds,
		&l.RemainingSeconds,
		&l.RequestedAt,
		&accepted,
		&connected,
		&ended,
		&reason,
		&l.RejoinCount,
		&rejoined,
	); err != nil {
		return Ledger{}, err
	}
	l.AcceptedAt = timePtr(accepted)
	l.ConnectedAt = timePtr(connected)
	l.EndedAt = timePtr(ended)
	l.EndReason = Reason(reason)
	l.RejoinedUserIDs = splitIDs(rejoined)
	return l, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
