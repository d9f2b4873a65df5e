package settings

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores call settings in a single-row table.
//
// Assumed schema:
//   call_settings(singleton bool PRIMARY KEY DEFAULT true CHECK (singleton),
//                 coin_price BIGINT, duration_seconds INT,
//                 updated_at TIMESTAMPTZ, updated_by TEXT)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetCallSettings(ctx context.Context) (CallSettings, bool, error) {
	const q = `
SELECT coin_price, duration_seconds, updated_at, COALESCE(updated_by, '')
FROM call_settings
WHERE singleton
`
	var s CallSettings
	err := r.db.QueryRowContext(ctx, q).Scan(&s.CoinPrice, &s.DurationSeconds, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSettings{}, false, nil
		}
		return CallSettings{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) PutCallSettings(ctx context.Context, s CallSettings) error {
	const q = `
INSERT INTO call_settings (singleton, coin_price, duration_seconds, updated_at, updated_by)
VALUES (true, $1, $2, $3, $4)
ON CONFLICT (singleton)
DO UPDATE SET coin_price = EXCLUDED.coin_price,
              duration_seconds = EXCLUDED.duration_seconds,
              updated_at = EXCLUDED.updated_at,
              updated_by = EXCLUDED.updated_by
`
	_, err := r.db.ExecContext(ctx, q, s.CoinPrice, s.DurationSeconds, s.UpdatedAt, s.UpdatedBy)
	return err
}
