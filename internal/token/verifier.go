package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/raindrop/identity-service/internal/models"
	"github.com/raindrop/identity-service/internal/repository"
)

// Reason classifies why verification failed. Reasons are for logs only;
// callers must collapse every failure to the same unauthenticated outcome.
type Reason string

const (
	ReasonOK           Reason = ""
	ReasonBadSignature Reason = "bad-signature"
	ReasonExpired      Reason = "expired"
	ReasonRevoked      Reason = "revoked"
	ReasonStoreError   Reason = "store-error"
)

// Verifier decides access-token validity: signature, then expiry, then the
// revocation lookup. The cheap local checks come first so tokens that are
// invalid by construction never cost a store round trip.
type Verifier struct {
	signer      *Signer
	invalidated repository.InvalidatedTokenRepository
	now         func() time.Time
}

func NewVerifier(signer *Signer, invalidated repository.InvalidatedTokenRepository) *Verifier {
	return &Verifier{signer: signer, invalidated: invalidated, now: time.Now}
}

// VerifyLocal runs the signature and expiry checks only. Logout uses it so
// that an already-revoked token can still be logged out.
func (v *Verifier) VerifyLocal(tokenStr string) (*models.AccessTokenClaims, Reason) {
	claims, err := v.signer.Parse(tokenStr)
	if err != nil {
		return nil, ReasonBadSignature
	}
	if claims.ExpiresAt == nil || !v.now().Before(claims.ExpiresAt.Time) {
		return nil, ReasonExpired
	}
	return claims, ReasonOK
}

// Verify runs the full check. A revocation-store failure fails closed: the
// token is reported invalid rather than trusted.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*models.AccessTokenClaims, Reason) {
	claims, reason := v.VerifyLocal(tokenStr)
	if reason != ReasonOK {
		return nil, reason
	}

	revoked, err := v.invalidated.Contains(ctx, claims.ID)
	if err != nil {
		slog.Error("revocation lookup failed", "jti", claims.ID, "error", err)
		return nil, ReasonStoreError
	}
	if revoked {
		return nil, ReasonRevoked
	}
	return claims, ReasonOK
}
