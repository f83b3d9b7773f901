package repository_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	repository "github.com/raindrop/identity-service/internal/repository/postgres"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPostgresInvalidatedTokenRepository_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresInvalidatedTokenRepository(db)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	t.Run("EmptyJTI", func(t *testing.T) {
		err := repo.Add(ctx, "", expiry)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO invalidated_tokens`)).
			WithArgs("jti-1", expiry).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Add(ctx, "jti-1", expiry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("IdempotentReAdd", func(t *testing.T) {
		// ON CONFLICT upsert: the second add is an overwrite, not an error.
		mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (id) DO UPDATE`)).
			WithArgs("jti-1", expiry).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Add(ctx, "jti-1", expiry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO invalidated_tokens`)).
			WithArgs("jti-1", expiry).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Add(ctx, "jti-1", expiry)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to invalidate token")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresInvalidatedTokenRepository_Contains(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresInvalidatedTokenRepository(db)
	ctx := context.Background()

	t.Run("Present", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WithArgs("jti-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		found, err := repo.Contains(ctx, "jti-1")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Absent", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WithArgs("jti-2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		found, err := repo.Contains(ctx, "jti-2")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WithArgs("jti-1").
			WillReturnError(fmt.Errorf("database error"))

		_, err := repo.Contains(ctx, "jti-1")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresInvalidatedTokenRepository_DeleteExpiredBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresInvalidatedTokenRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM invalidated_tokens WHERE expiry_time < $1`)).
			WithArgs(now).
			WillReturnResult(sqlmock.NewResult(0, 2))

		count, err := repo.DeleteExpiredBefore(ctx, now)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NothingToDelete", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM invalidated_tokens WHERE expiry_time < $1`)).
			WithArgs(now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		count, err := repo.DeleteExpiredBefore(ctx, now)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
