package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the claim set embedded in a signed access token.
// It is never persisted; the jti is the only part that can outlive the
// token itself, as the key of an InvalidatedToken row.
type AccessTokenClaims struct {
	Scope string `json:"scope"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RefreshToken is a persisted opaque credential. The token string carries
// no claims, it is a lookup key. A record is usable iff it is not revoked
// and not past its expiry date.
type RefreshToken struct {
	ID         string
	Token      string
	UserID     string
	ExpiryDate time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Revoked    bool
}

func (r *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiryDate)
}

// InvalidatedToken marks a single access token as revoked before its
// natural expiry. ID is the token's jti; ExpiryTime is the token's
// original expiration, after which the row is redundant and reclaimable.
type InvalidatedToken struct {
	ID         string
	ExpiryTime time.Time
}
