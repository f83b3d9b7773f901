package repository

import (
	"context"
	"time"

	"github.com/raindrop/identity-service/internal/models"
)

type RefreshTokenRepository interface {
	// Save persists a new record and fills its ID and timestamps.
	Save(ctx context.Context, token *models.RefreshToken) error
	// FindByToken returns pkgerrors.ErrTokenNotFound when no record matches.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	// RevokeAllForUser flips revoked=true on every record the user owns,
	// regardless of current state. The transition is one-way.
	RevokeAllForUser(ctx context.Context, userID string) error
	// DeleteExpiredAndRevoked removes records that are revoked or past
	// expiry as of now. Records still usable at now are never touched.
	DeleteExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error)
}
