package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raindrop/identity-service/internal/models"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
)

type PostgresRefreshTokenRepository struct {
	db *sql.DB
}

func NewPostgresRefreshTokenRepository(db *sql.DB) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

func (r *PostgresRefreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	if token == nil {
		return fmt.Errorf("%w: refresh token is nil", pkgerrors.ErrInvalidInput)
	}
	if token.Token == "" || token.UserID == "" {
		return fmt.Errorf("%w: token and user_id are required", pkgerrors.ErrInvalidInput)
	}

	query := `
	INSERT INTO refresh_tokens (id, token, user_id, expiry_date, revoked)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		token.ID,
		token.Token,
		token.UserID,
		token.ExpiryDate,
		token.Revoked,
	).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) FindByToken(ctx context.Context, tokenStr string) (*models.RefreshToken, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: token cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `
	SELECT id, token, user_id, expiry_date, created_at, updated_at, revoked
	FROM refresh_tokens WHERE token = $1
	`
	var token models.RefreshToken
	err := r.db.QueryRowContext(ctx, query, tokenStr).Scan(
		&token.ID,
		&token.Token,
		&token.UserID,
		&token.ExpiryDate,
		&token.CreatedAt,
		&token.UpdatedAt,
		&token.Revoked,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrTokenNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &token, nil
}

// RevokeAllForUser is a single UPDATE so a concurrent FindByToken either
// sees the record before the logout or already revoked, never half of a
// user's tokens.
func (r *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	query := `
	UPDATE refresh_tokens SET revoked = true, updated_at = NOW()
	WHERE user_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) DeleteExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE revoked = true OR expiry_date < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted refresh tokens: %w", err)
	}
	return count, nil
}
