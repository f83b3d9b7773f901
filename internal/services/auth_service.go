package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/raindrop/identity-service/internal/infrastructure/kafka"
	"github.com/raindrop/identity-service/internal/infrastructure/observability"
	"github.com/raindrop/identity-service/internal/models"
	"github.com/raindrop/identity-service/internal/repository"
	"github.com/raindrop/identity-service/internal/token"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const authEventsTopic = "auth-events"

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Register(ctx context.Context, username, password, email string) (string, error)
	Introspect(ctx context.Context, accessToken string) bool
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
}

type authService struct {
	userRepo        repository.UserRepository
	refreshRepo     repository.RefreshTokenRepository
	invalidatedRepo repository.InvalidatedTokenRepository
	issuer          *token.Issuer
	verifier        *token.Verifier
	kafkaProducer   kafka.KafkaProducer
}

func NewAuthService(
	userRepo repository.UserRepository,
	refreshRepo repository.RefreshTokenRepository,
	invalidatedRepo repository.InvalidatedTokenRepository,
	issuer *token.Issuer,
	verifier *token.Verifier,
	kafkaProducer kafka.KafkaProducer,
) *authService {
	return &authService{
		userRepo:        userRepo,
		refreshRepo:     refreshRepo,
		invalidatedRepo: invalidatedRepo,
		issuer:          issuer,
		verifier:        verifier,
		kafkaProducer:   kafkaProducer,
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	tracer := otel.Tracer("identity-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByUsername(ctx, username)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		// Same answer as a wrong password, so probing usernames tells
		// the caller nothing.
		slog.Warn("login failed: user not found", "username", username)
		observability.TokenOperations.WithLabelValues("login", "denied").Inc()
		return nil, pkgerrors.ErrInvalidCredentials
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		slog.Error("failed to look up user", "username", username, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed: invalid password", "username", username)
		observability.TokenOperations.WithLabelValues("login", "denied").Inc()
		return nil, pkgerrors.ErrInvalidCredentials
	}

	accessToken, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "access token issuance failed")
		return nil, fmt.Errorf("%w: failed to issue access token", pkgerrors.ErrInternal)
	}

	refreshToken, err := s.issuer.IssueRefreshToken(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh token issuance failed")
		return nil, err
	}

	s.publishEvent(user.ID, "user.login", map[string]interface{}{
		"event_type": "user.login",
		"user_id":    user.ID,
		"username":   user.Username,
		"at":         time.Now().UTC().Format(time.RFC3339),
	})

	observability.TokenOperations.WithLabelValues("login", "ok").Inc()
	slog.Info("user logged in", "username", username, "user_id", user.ID)
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

func (s *authService) Register(ctx context.Context, username, password, email string) (string, error) {
	tracer := otel.Tracer("identity-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return "", pkgerrors.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		Roles:        []models.Role{{Name: "USER"}},
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserExists) {
			slog.Warn("username already exists", "username", username)
			return "", pkgerrors.ErrUserExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "username", username, "error", err)
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	s.publishEvent(user.ID, "user.registered", map[string]interface{}{
		"event_type": "user.registered",
		"user_id":    user.ID,
		"username":   username,
		"email":      email,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})

	slog.Info("user registered successfully", "user_id", user.ID, "username", username)
	return user.ID, nil
}

// Introspect never fails: any verification problem, including a store
// outage, collapses to "invalid". The reason stays in the logs.
func (s *authService) Introspect(ctx context.Context, accessToken string) bool {
	tracer := otel.Tracer("identity-service")
	ctx, span := tracer.Start(ctx, "Introspect")
	defer span.End()

	claims, reason := s.verifier.Verify(ctx, accessToken)
	if reason != token.ReasonOK {
		slog.Debug("token introspection: invalid", "reason", string(reason))
		observability.TokenOperations.WithLabelValues("introspect", string(reason)).Inc()
		return false
	}

	observability.TokenOperations.WithLabelValues("introspect", "valid").Inc()
	slog.Debug("token introspection: valid", "user_id", claims.Subject)
	return true
}

// Logout checks signature and expiry only: a token that was already
// revoked can still be logged out, which keeps retries harmless.
func (s *authService) Logout(ctx context.Context, accessToken string) error {
	tracer := otel.Tracer("identity-service")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	claims, reason := s.verifier.VerifyLocal(accessToken)
	if reason != token.ReasonOK {
		slog.Warn("logout rejected", "reason", string(reason))
		observability.TokenOperations.WithLabelValues("logout", "denied").Inc()
		return pkgerrors.ErrUnauthenticated
	}

	if err := s.invalidatedRepo.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token invalidation failed")
		slog.Error("failed to invalidate access token", "jti", claims.ID, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	// The access token is revoked at this point. A failure below leaves
	// at worst a stale refresh token until its natural expiry or a
	// retried logout.
	if err := s.refreshRepo.RevokeAllForUser(ctx, claims.Subject); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh token revocation failed")
		slog.Error("failed to revoke refresh tokens", "user_id", claims.Subject, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	s.publishEvent(claims.Subject, "user.logout", map[string]interface{}{
		"event_type": "user.logout",
		"user_id":    claims.Subject,
		"at":         time.Now().UTC().Format(time.RFC3339),
	})

	observability.TokenOperations.WithLabelValues("logout", "ok").Inc()
	slog.Info("user logged out", "user_id", claims.Subject, "jti", claims.ID)
	return nil
}

// Refresh exchanges a usable refresh token for a new access token. The
// refresh token itself is returned unchanged; this service does not
// rotate refresh tokens on use.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	tracer := otel.Tracer("identity-service")
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	record, err := s.refreshRepo.FindByToken(ctx, refreshToken)
	if stderrors.Is(err, pkgerrors.ErrTokenNotFound) {
		slog.Warn("refresh token not found")
		observability.TokenOperations.WithLabelValues("refresh", "denied").Inc()
		return nil, pkgerrors.ErrInvalidRefreshToken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh token lookup failed")
		slog.Error("failed to look up refresh token", "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	if record.Revoked {
		slog.Warn("refresh token has been revoked", "user_id", record.UserID)
		observability.TokenOperations.WithLabelValues("refresh", "denied").Inc()
		return nil, pkgerrors.ErrInvalidRefreshToken
	}
	if record.Expired(time.Now()) {
		slog.Warn("refresh token has expired", "user_id", record.UserID)
		observability.TokenOperations.WithLabelValues("refresh", "denied").Inc()
		return nil, pkgerrors.ErrInvalidRefreshToken
	}

	user, err := s.userRepo.GetByID(ctx, record.UserID)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		// Owner is gone; the orphaned token must not mint credentials.
		slog.Warn("refresh token owner no longer exists", "user_id", record.UserID)
		observability.TokenOperations.WithLabelValues("refresh", "denied").Inc()
		return nil, pkgerrors.ErrInvalidRefreshToken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		slog.Error("failed to look up user", "user_id", record.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	accessToken, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "access token issuance failed")
		return nil, fmt.Errorf("%w: failed to issue access token", pkgerrors.ErrInternal)
	}

	observability.TokenOperations.WithLabelValues("refresh", "ok").Inc()
	slog.Info("token refreshed", "user_id", user.ID)
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: record.Token,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

func (s *authService) publishEvent(key, name string, event map[string]interface{}) {
	if s.kafkaProducer == nil {
		return
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal kafka event", "event", name, "error", err)
		return
	}
	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.kafkaProducer.Send(context.Background(), authEventsTopic, key, eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send auth event after retries", "event", name, "key", key)
	}()
}
