package users

import (
	"context"
	"time"
)

// User is the minimal profile view the call engine needs.
// Profile editing, discovery and the rest of the account surface live in a
// separate service; this package only answers "does this user exist and what
// role do they hold".
type User struct {
	ID          string    `json:"id" db:"id"`
	Role        string    `json:"role" db:"role"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Directory abstracts user lookup.
type Directory interface {
	Find(ctx context.Context, id string) (User, bool, error)
}
