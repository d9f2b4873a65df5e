package chat

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresFinder reads from the chats table owned by the messaging service.
type PostgresFinder struct {
	db *sql.DB
}

func NewPostgresFinder(db *sql.DB) *PostgresFinder {
	return &PostgresFinder{db: db}
}

func (f *PostgresFinder) FindActiveBetween(ctx context.Context, userA, userB string) (string, bool, error) {
	// Participant columns are stored unordered; match both orientations.
	const q = `
SELECT id
FROM chats
WHERE status = 'active'
  AND ((user_a = $1 AND user_b = $2) OR (user_a = $2 AND user_b = $1))
LIMIT 1
`
	var id string
	err := f.db.QueryRowContext(ctx, q, userA, userB).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}
