package repository

import (
	"context"
	"time"
)

// InvalidatedTokenRepository is the revocation set for access tokens,
// keyed by jti. It is the single source of truth shared by every service
// instance; verifiers keep no local copy.
type InvalidatedTokenRepository interface {
	// Add records a jti as revoked until its natural expiry. Adding the
	// same jti again is an overwrite, not an error.
	Add(ctx context.Context, jti string, expiry time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
	// DeleteExpiredBefore removes rows with expiry strictly before now.
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}
