package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/raindrop/identity-service/internal/models"
	"github.com/raindrop/identity-service/internal/repository"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
)

const TokenIssuer = "raindrop.com"

// Issuer mints access and refresh tokens. Access tokens are signed and
// self-contained; refresh tokens are opaque random strings persisted in
// the refresh token store.
type Issuer struct {
	signer      *Signer
	refreshRepo repository.RefreshTokenRepository
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

func NewIssuer(signer *Signer, refreshRepo repository.RefreshTokenRepository, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		signer:      signer,
		refreshRepo: refreshRepo,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

func (i *Issuer) AccessTokenTTL() time.Duration { return i.accessTTL }

func (i *Issuer) IssueAccessToken(user *models.User) (string, error) {
	if user == nil {
		return "", pkgerrors.ErrNilUser
	}

	now := i.now()
	claims := &models.AccessTokenClaims{
		Scope: BuildScope(user),
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		slog.Error("failed to sign access token", "user_id", user.ID, "error", err)
		return "", err
	}
	return signed, nil
}

func (i *Issuer) IssueRefreshToken(ctx context.Context, user *models.User) (*models.RefreshToken, error) {
	if user == nil {
		return nil, pkgerrors.ErrNilUser
	}

	opaque, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &models.RefreshToken{
		ID:         uuid.NewString(),
		Token:      opaque,
		UserID:     user.ID,
		ExpiryDate: i.now().Add(i.refreshTTL),
		Revoked:    false,
	}
	if err := i.refreshRepo.Save(ctx, record); err != nil {
		slog.Error("failed to persist refresh token", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	slog.Info("refresh token created", "user_id", user.ID, "expiry_date", record.ExpiryDate)
	return record, nil
}

// BuildScope joins "ROLE_<name>" for each role with the permission names
// attached to that role, space-separated.
func BuildScope(user *models.User) string {
	var parts []string
	for _, role := range user.Roles {
		parts = append(parts, "ROLE_"+role.Name)
		parts = append(parts, role.Permissions...)
	}
	return strings.Join(parts, " ")
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
