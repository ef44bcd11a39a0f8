package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// UserRepo stores auth identities (the provider's users)
type UserRepo interface {
	Create(ctx context.Context, user model.AuthUser) (model.AuthUser, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.AuthUser, error)
	GetByEmail(ctx context.Context, email string) (model.AuthUser, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, name, role, password_hash, email_confirmed_at, created_at, updated_at`

// Create inserts a user. Email is stored lower-cased.
func (r *userRepo) Create(ctx context.Context, user model.AuthUser) (model.AuthUser, error) {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO auth_users (email, name, role, password_hash, email_confirmed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, user.Email, user.Name, string(user.Role), user.PasswordHash, user.EmailConfirmedAt).Scan(
		&idStr,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.AuthUser, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM auth_users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by email (case-insensitive)
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.AuthUser, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM auth_users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// Delete removes a user together with its identities, factors and sessions
func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (model.AuthUser, error) {
	var user model.AuthUser
	var idStr, role string
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Name,
		&role,
		&user.PasswordHash,
		&user.EmailConfirmedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AuthUser{}, fmt.Errorf("user not found: %w", ErrNotFound)
		}
		return model.AuthUser{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.Role = model.Role(role)
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}
