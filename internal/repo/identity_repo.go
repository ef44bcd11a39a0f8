package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// IdentityRepo stores external accounts linked to auth users
type IdentityRepo interface {
	Create(ctx context.Context, identity model.Identity) (model.Identity, error)
	GetByProviderSubject(ctx context.Context, provider, subject string) (model.Identity, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Identity, error)
}

type identityRepo struct {
	db *sql.DB
}

// NewIdentityRepo creates a new IdentityRepo instance
func NewIdentityRepo(db *sql.DB) IdentityRepo {
	return &identityRepo{db: db}
}

// Create links an identity. A (provider, subject) pair can only be linked once.
func (r *identityRepo) Create(ctx context.Context, identity model.Identity) (model.Identity, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO auth_identities (user_id, provider, subject, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, identity.UserID, identity.Provider, identity.Subject, identity.Email).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to create identity: %w", err)
	}
	return identity, nil
}

func (r *identityRepo) GetByProviderSubject(ctx context.Context, provider, subject string) (model.Identity, error) {
	var identity model.Identity
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, subject, email, created_at
		FROM auth_identities
		WHERE provider = $1 AND subject = $2
	`, provider, subject).Scan(
		&identity.ID,
		&identity.UserID,
		&identity.Provider,
		&identity.Subject,
		&identity.Email,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("identity not found: %w", ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("failed to query identity: %w", err)
	}
	return identity, nil
}

func (r *identityRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider, subject, email, created_at
		FROM auth_identities
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]model.Identity, 0)
	for rows.Next() {
		var identity model.Identity
		if err := rows.Scan(
			&identity.ID,
			&identity.UserID,
			&identity.Provider,
			&identity.Subject,
			&identity.Email,
			&identity.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}
