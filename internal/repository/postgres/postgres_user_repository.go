package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/raindrop/identity-service/internal/models"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Create persists the user together with its role assignments. The role
// rows land in the same transaction as the user row: a user visible to
// login must never be visible without the roles its scope is built from.
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: username and password are required", pkgerrors.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
	INSERT INTO users (id, username, password_hash, email)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`
	err = tx.QueryRowContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Email,
	).Scan(&user.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		tx.Rollback()
		return pkgerrors.ErrUserExists
	}
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleQuery := `
	INSERT INTO user_roles (user_id, role_name)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING
	`
	for _, role := range user.Roles {
		if _, err := tx.ExecContext(ctx, roleQuery, user.ID, role.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to assign role %q: %w", role.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, password_hash, email, created_at FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", pkgerrors.ErrInvalidInput)
	}
	query := `SELECT id, username, password_hash, email, created_at FROM users WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := r.loadRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &user, nil
}

func (r *PostgresUserRepository) loadRoles(ctx context.Context, userID string) ([]models.Role, error) {
	query := `
	SELECT r.name, COALESCE(p.name, '')
	FROM user_roles ur
	JOIN roles r ON r.name = ur.role_name
	LEFT JOIN role_permissions p ON p.role_name = r.name
	WHERE ur.user_id = $1
	ORDER BY r.name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var roleName, permName string
		if err := rows.Scan(&roleName, &permName); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if len(roles) == 0 || roles[len(roles)-1].Name != roleName {
			roles = append(roles, models.Role{Name: roleName})
		}
		if permName != "" {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, permName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	return roles, nil
}
