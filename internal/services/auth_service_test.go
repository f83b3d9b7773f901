package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/raindrop/identity-service/internal/models"
	"github.com/raindrop/identity-service/internal/token"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users map[string]*models.User // by username
	err   error
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[user.Username]; ok {
		return pkgerrors.ErrUserExists
	}
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	mu      sync.Mutex
	records map[string]*models.RefreshToken // by token string
	err     error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{records: make(map[string]*models.RefreshToken)}
}

func (f *fakeRefreshRepo) Save(_ context.Context, t *models.RefreshToken) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	f.records[t.Token] = t
	return nil
}

func (f *fakeRefreshRepo) FindByToken(_ context.Context, tokenStr string) (*models.RefreshToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.records[tokenStr]
	if !ok {
		return nil, pkgerrors.ErrTokenNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.records {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeRefreshRepo) DeleteExpiredAndRevoked(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for key, t := range f.records {
		if t.Revoked || t.Expired(now) {
			delete(f.records, key)
			n++
		}
	}
	return n, nil
}

type fakeInvalidatedRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func newFakeInvalidatedRepo() *fakeInvalidatedRepo {
	return &fakeInvalidatedRepo{revoked: make(map[string]time.Time)}
}

func (f *fakeInvalidatedRepo) Add(_ context.Context, jti string, expiry time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = expiry
	return nil
}

func (f *fakeInvalidatedRepo) Contains(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[jti]
	return ok, nil
}

func (f *fakeInvalidatedRepo) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for jti, expiry := range f.revoked {
		if expiry.Before(now) {
			delete(f.revoked, jti)
			n++
		}
	}
	return n, nil
}

type fixture struct {
	svc             *authService
	userRepo        *fakeUserRepo
	refreshRepo     *fakeRefreshRepo
	invalidatedRepo *fakeInvalidatedRepo
	signer          *token.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := token.NewSigner("test-secret")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	userRepo := &fakeUserRepo{users: map[string]*models.User{
		"alice": {
			ID:           "user-1",
			Username:     "alice",
			PasswordHash: string(hash),
			Email:        "alice@example.com",
			Roles:        []models.Role{{Name: "USER"}},
		},
	}}
	refreshRepo := newFakeRefreshRepo()
	invalidatedRepo := newFakeInvalidatedRepo()

	issuer := token.NewIssuer(signer, refreshRepo, time.Hour, 7*24*time.Hour)
	verifier := token.NewVerifier(signer, invalidatedRepo)

	// Kafka producer is nil: event publication is best-effort and not
	// part of the flows under test.
	svc := NewAuthService(userRepo, refreshRepo, invalidatedRepo, issuer, verifier, nil)
	return &fixture{
		svc:             svc,
		userRepo:        userRepo,
		refreshRepo:     refreshRepo,
		invalidatedRepo: invalidatedRepo,
		signer:          signer,
	}
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, int64(3600), result.ExpiresIn)

		// Issued token is valid immediately.
		assert.True(t, f.svc.Introspect(ctx, result.AccessToken))
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "ghost", "whatever")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		f.userRepo.err = assert.AnError
		defer func() { f.userRepo.err = nil }()

		_, err := f.svc.Login(ctx, "alice", "correct-horse")
		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})
}

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		id, err := f.svc.Register(ctx, "bob", "hunter2", "bob@example.com")
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		user, err := f.userRepo.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2")))
		assert.Equal(t, []models.Role{{Name: "USER"}}, user.Roles)
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := f.svc.Register(ctx, "alice", "pw", "")
		assert.ErrorIs(t, err, pkgerrors.ErrUserExists)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		_, err := f.svc.Register(ctx, "", "", "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestAuthService_Introspect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("Garbage", func(t *testing.T) {
		assert.False(t, f.svc.Introspect(ctx, "not-a-token"))
	})

	t.Run("StoreErrorFailsClosed", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		f.invalidatedRepo.err = assert.AnError
		defer func() { f.invalidatedRepo.err = nil }()
		assert.False(t, f.svc.Introspect(ctx, result.AccessToken))
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("RevocationImmediacy", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		require.True(t, f.svc.Introspect(ctx, result.AccessToken))

		require.NoError(t, f.svc.Logout(ctx, result.AccessToken))

		// Still unexpired, but revoked.
		assert.False(t, f.svc.Introspect(ctx, result.AccessToken))
	})

	t.Run("RefreshTokenCascade", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(ctx, result.AccessToken))

		_, err = f.svc.Refresh(ctx, result.RefreshToken)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidRefreshToken)
	})

	t.Run("AlreadyRevokedTokenCanLogOutAgain", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(ctx, result.AccessToken))
		assert.NoError(t, f.svc.Logout(ctx, result.AccessToken))
	})

	t.Run("ExpiredTokenRejected", func(t *testing.T) {
		claims := &models.AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    token.TokenIssuer,
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				ID:        uuid.NewString(),
			},
		}
		expired, err := f.signer.Sign(claims)
		require.NoError(t, err)

		assert.ErrorIs(t, f.svc.Logout(ctx, expired), pkgerrors.ErrUnauthenticated)
	})

	t.Run("GarbageTokenRejected", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Logout(ctx, "junk"), pkgerrors.ErrUnauthenticated)
	})

	t.Run("RevocationStoreDown", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		f.invalidatedRepo.err = assert.AnError
		defer func() { f.invalidatedRepo.err = nil }()
		assert.ErrorIs(t, f.svc.Logout(ctx, result.AccessToken), pkgerrors.ErrStoreUnavailable)
	})

	t.Run("RefreshStoreDownAfterRevocation", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		f.refreshRepo.err = assert.AnError
		err = f.svc.Logout(ctx, result.AccessToken)
		f.refreshRepo.err = nil

		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
		// Partial success: the access token is revoked even though the
		// refresh-token sweep failed.
		assert.False(t, f.svc.Introspect(ctx, result.AccessToken))
	})
}

func TestAuthService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("SuccessWithoutRotation", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		first, err := f.svc.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, result.RefreshToken, first.RefreshToken)
		assert.NotEmpty(t, first.AccessToken)
		assert.True(t, f.svc.Introspect(ctx, first.AccessToken))

		// Same refresh token works again: no rotation on use.
		second, err := f.svc.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, result.RefreshToken, second.RefreshToken)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.svc.Refresh(ctx, "unknown-token")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidRefreshToken)
	})

	t.Run("Expired", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		f.refreshRepo.mu.Lock()
		f.refreshRepo.records[result.RefreshToken].ExpiryDate = time.Now().Add(-time.Minute)
		f.refreshRepo.mu.Unlock()

		_, err = f.svc.Refresh(ctx, result.RefreshToken)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidRefreshToken)
	})

	t.Run("OwnerDeleted", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "alice", "correct-horse")
		require.NoError(t, err)

		delete(f.userRepo.users, "alice")
		defer func() { f.userRepo.users["alice"] = &models.User{ID: "user-1", Username: "alice"} }()

		_, err = f.svc.Refresh(ctx, result.RefreshToken)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidRefreshToken)
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		f.refreshRepo.err = assert.AnError
		defer func() { f.refreshRepo.err = nil }()

		_, err := f.svc.Refresh(ctx, "any")
		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	})
}
