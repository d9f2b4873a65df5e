package users

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads from the users table owned by the account service.
// Read-only by contract: the call engine never mutates profiles.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Find(ctx context.Context, id string) (User, bool, error) {
	const q = `
SELECT id, role, display_name, created_at
FROM users
WHERE id = $1
`
	var u User
	err := d.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Role,
		&u.DisplayName,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}
