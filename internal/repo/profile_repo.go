package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// ProfileRepo stores application-side user profiles (the users table)
type ProfileRepo interface {
	Create(ctx context.Context, profile model.Profile) (model.Profile, error)
	Upsert(ctx context.Context, profile model.Profile) (model.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Profile, error)
}

type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new ProfileRepo instance
func NewProfileRepo(db *sql.DB) ProfileRepo {
	return &profileRepo{db: db}
}

// Create inserts a profile keyed by the auth user's ID
func (r *profileRepo) Create(ctx context.Context, profile model.Profile) (model.Profile, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, profile.ID, profile.Email, profile.Name).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// Upsert inserts the profile or, when the ID exists, updates its name (a nil name keeps
// the stored one)
func (r *profileRepo) Upsert(ctx context.Context, profile model.Profile) (model.Profile, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = COALESCE(EXCLUDED.name, users.name), updated_at = now()
		RETURNING email, created_at, updated_at
	`, profile.ID, profile.Email, profile.Name).Scan(&profile.Email, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return profile, nil
}

func (r *profileRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, fmt.Errorf("profile not found: %w", ErrNotFound)
		}
		return model.Profile{}, fmt.Errorf("failed to query profile: %w", err)
	}
	return p, nil
}
