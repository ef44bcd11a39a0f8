package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safespace/server/internal/model"
)

// RefreshRepo defines the interface for refresh session repository operations
type RefreshRepo interface {
	Create(ctx context.Context, userID uuid.UUID, tokenHash string, aal model.AAL, amr []string, expiresAt time.Time) (uuid.UUID, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeAndSetReplacedBy(ctx context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error
	Revoke(ctx context.Context, sessionID uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

const refreshColumns = `id, user_id, token_hash, aal, amr, created_at, expires_at, revoked_at, replaced_by`

// Create inserts a new refresh session carrying the assurance level it was issued at
func (r *refreshRepo) Create(ctx context.Context, userID uuid.UUID, tokenHash string, aal model.AAL, amr []string, expiresAt time.Time) (uuid.UUID, error) {
	if amr == nil {
		amr = []string{}
	}
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO refresh_sessions (user_id, token_hash, aal, amr, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, tokenHash, string(aal), pq.Array(amr), expiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert refresh session: %w", err)
	}
	return id, nil
}

// FindByTokenHash returns the session if it exists, is not revoked, and not expired
func (r *refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
	`, tokenHash)
	return scanRefreshSession(row)
}

// FindByTokenHashIncludeRevoked returns the session regardless of revocation status (used for reuse detection)
func (r *refreshRepo) FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)
	return scanRefreshSession(row)
}

// RevokeAndSetReplacedBy sets revoked_at and replaced_by for the session
func (r *refreshRepo) RevokeAndSetReplacedBy(ctx context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1
	`, sessionID, replacedBy)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %w", ErrNotFound)
	}
	return nil
}

// Revoke sets revoked_at for the session
func (r *refreshRepo) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %w", ErrNotFound)
	}
	return nil
}

// RevokeAllForUser revokes all active refresh sessions for a user (sign-out, reuse/theft response)
func (r *refreshRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions for user: %w", err)
	}
	return nil
}

func scanRefreshSession(row *sql.Row) (model.RefreshSession, error) {
	var s model.RefreshSession
	var aal string
	var replacedBy uuid.NullUUID
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&aal,
		pq.Array(&s.AMR),
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&replacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshSession{}, fmt.Errorf("session not found: %w", ErrNotFound)
		}
		return model.RefreshSession{}, fmt.Errorf("find session: %w", err)
	}
	s.AAL = model.AAL(aal)
	if replacedBy.Valid {
		id := replacedBy.UUID
		s.ReplacedBy = &id
	}
	return s, nil
}
