package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to an insert-only table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, call_id, actor_user_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.CallID,
		e.ActorUserID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
