package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// ChallengeRepo stores MFA challenges issued against a factor
type ChallengeRepo interface {
	Create(ctx context.Context, factorID uuid.UUID, expiresAt time.Time, ip *string) (model.Challenge, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Challenge, error)
	IncrementAttempt(ctx context.Context, id uuid.UUID) (newAttemptCount int, err error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	CountRecent(ctx context.Context, factorID uuid.UUID, since time.Time) (int, error)
}

type challengeRepo struct {
	db *sql.DB
}

// NewChallengeRepo creates a new ChallengeRepo instance
func NewChallengeRepo(db *sql.DB) ChallengeRepo {
	return &challengeRepo{db: db}
}

func (r *challengeRepo) Create(ctx context.Context, factorID uuid.UUID, expiresAt time.Time, ip *string) (model.Challenge, error) {
	challenge := model.Challenge{FactorID: factorID, ExpiresAt: expiresAt, IPAddress: ip}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mfa_challenges (factor_id, expires_at, ip_address)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, factorID, expiresAt, ip).Scan(&challenge.ID, &challenge.CreatedAt)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("insert challenge: %w", err)
	}
	return challenge, nil
}

func (r *challengeRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Challenge, error) {
	var c model.Challenge
	err := r.db.QueryRowContext(ctx, `
		SELECT id, factor_id, created_at, expires_at, verified_at,
		       attempt_count, last_attempt_at, ip_address
		FROM mfa_challenges
		WHERE id = $1
	`, id).Scan(
		&c.ID,
		&c.FactorID,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.VerifiedAt,
		&c.AttemptCount,
		&c.LastAttemptAt,
		&c.IPAddress,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Challenge{}, fmt.Errorf("challenge not found: %w", ErrNotFound)
		}
		return model.Challenge{}, fmt.Errorf("query challenge: %w", err)
	}
	return c, nil
}

// IncrementAttempt sets attempt_count = attempt_count + 1 and last_attempt_at = now(); returns the new attempt_count.
func (r *challengeRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE mfa_challenges
		SET attempt_count = attempt_count + 1, last_attempt_at = now()
		WHERE id = $1
		RETURNING attempt_count
	`, id).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("challenge not found: %w", ErrNotFound)
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

// MarkVerified consumes the challenge. A challenge can be verified once.
func (r *challengeRepo) MarkVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mfa_challenges SET verified_at = now() WHERE id = $1 AND verified_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark challenge verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("challenge not found: %w", ErrNotFound)
	}
	return nil
}

// CountRecent returns the number of challenges created for the factor since the given time (for rate limiting).
func (r *challengeRepo) CountRecent(ctx context.Context, factorID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mfa_challenges
		WHERE factor_id = $1 AND created_at >= $2
	`, factorID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent challenges: %w", err)
	}
	return count, nil
}
