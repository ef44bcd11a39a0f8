package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// FactorRepo stores MFA factors (authenticator apps enrolled by a user)
type FactorRepo interface {
	Create(ctx context.Context, userID uuid.UUID, friendlyName, secret string) (model.Factor, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Factor, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Factor, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type factorRepo struct {
	db *sql.DB
}

// NewFactorRepo creates a new FactorRepo instance
func NewFactorRepo(db *sql.DB) FactorRepo {
	return &factorRepo{db: db}
}

const factorColumns = `id, user_id, friendly_name, factor_type, status, secret, created_at, updated_at`

// Create enrolls a new unverified TOTP factor
func (r *factorRepo) Create(ctx context.Context, userID uuid.UUID, friendlyName, secret string) (model.Factor, error) {
	factor := model.Factor{
		UserID:       userID,
		FriendlyName: friendlyName,
		Type:         model.FactorTOTP,
		Status:       model.FactorUnverified,
		Secret:       secret,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mfa_factors (user_id, friendly_name, factor_type, status, secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, userID, friendlyName, string(factor.Type), string(factor.Status), secret).Scan(
		&factor.ID,
		&factor.CreatedAt,
		&factor.UpdatedAt,
	)
	if err != nil {
		return model.Factor{}, fmt.Errorf("failed to create factor: %w", err)
	}
	return factor, nil
}

func (r *factorRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Factor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+factorColumns+` FROM mfa_factors WHERE id = $1`, id)
	factor, err := scanFactor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Factor{}, fmt.Errorf("factor not found: %w", ErrNotFound)
		}
		return model.Factor{}, fmt.Errorf("failed to query factor: %w", err)
	}
	return factor, nil
}

// ListByUser returns the user's factors, oldest first
func (r *factorRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Factor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list factors: %w", err)
	}
	defer rows.Close()

	factors := make([]model.Factor, 0)
	for rows.Next() {
		factor, err := scanFactor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan factor: %w", err)
		}
		factors = append(factors, factor)
	}
	return factors, rows.Err()
}

func (r *factorRepo) MarkVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mfa_factors SET status = 'verified', updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark factor verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("factor not found: %w", ErrNotFound)
	}
	return nil
}

func (r *factorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mfa_factors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete factor: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("factor not found: %w", ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFactor(row rowScanner) (model.Factor, error) {
	var factor model.Factor
	var factorType, status string
	err := row.Scan(
		&factor.ID,
		&factor.UserID,
		&factor.FriendlyName,
		&factorType,
		&status,
		&factor.Secret,
		&factor.CreatedAt,
		&factor.UpdatedAt,
	)
	if err != nil {
		return model.Factor{}, err
	}
	factor.Type = model.FactorType(factorType)
	factor.Status = model.FactorStatus(status)
	return factor, nil
}
