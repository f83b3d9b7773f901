package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
)

type PostgresInvalidatedTokenRepository struct {
	db *sql.DB
}

func NewPostgresInvalidatedTokenRepository(db *sql.DB) *PostgresInvalidatedTokenRepository {
	return &PostgresInvalidatedTokenRepository{db: db}
}

func (r *PostgresInvalidatedTokenRepository) Add(ctx context.Context, jti string, expiry time.Time) error {
	if jti == "" {
		return fmt.Errorf("%w: jti cannot be empty", pkgerrors.ErrInvalidInput)
	}

	// Upsert keeps logout idempotent: revoking the same token twice wins
	// over failing the second logout.
	query := `
	INSERT INTO invalidated_tokens (id, expiry_time)
	VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET expiry_time = EXCLUDED.expiry_time
	`
	if _, err := r.db.ExecContext(ctx, query, jti, expiry); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

func (r *PostgresInvalidatedTokenRepository) Contains(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM invalidated_tokens WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check invalidated token: %w", err)
	}
	return exists, nil
}

func (r *PostgresInvalidatedTokenRepository) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM invalidated_tokens WHERE expiry_time < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete invalidated tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted invalidated tokens: %w", err)
	}
	return count, nil
}
