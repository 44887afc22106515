package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wifiportal/internal/models"
)

type AuthSessionRepository struct {
	db DBTX
}

func NewAuthSessionRepository(db DBTX) *AuthSessionRepository {
	return &AuthSessionRepository{db: db}
}

func (r *AuthSessionRepository) Create(ctx context.Context, session models.AuthSession) error {
	const query = `
		INSERT INTO auth_sessions (
			id, user_id, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW(), $6
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	)
	return err
}

// DeleteOldest keeps the keepLatest most recently seen logins of a user.
func (r *AuthSessionRepository) DeleteOldest(ctx context.Context, userID string, keepLatest int) error {
	const query = `
		DELETE FROM auth_sessions
		WHERE id IN (
			SELECT id FROM auth_sessions
			WHERE user_id = $1
			ORDER BY last_seen_at DESC
			OFFSET $2
		)
	`
	_, err := r.db.Exec(ctx, query, userID, keepLatest)
	return err
}

const authSessionColumns = `id, user_id, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at`

func (r *AuthSessionRepository) GetByID(ctx context.Context, id string) (models.AuthSession, error) {
	query := `SELECT ` + authSessionColumns + ` FROM auth_sessions WHERE id = $1`
	return scanAuthSession(r.db.QueryRow(ctx, query, id))
}

func (r *AuthSessionRepository) FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (models.AuthSession, error) {
	query := `SELECT ` + authSessionColumns + ` FROM auth_sessions WHERE user_id = $1 AND refresh_token_hash = $2`
	return scanAuthSession(r.db.QueryRow(ctx, query, userID, refreshHash))
}

func scanAuthSession(row pgx.Row) (models.AuthSession, error) {
	var session models.AuthSession
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshTokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AuthSession{}, ErrAuthSessionNotFound
		}
		return models.AuthSession{}, err
	}
	return session, nil
}

func (r *AuthSessionRepository) Rotate(ctx context.Context, id string, refreshHash []byte, expiresAt time.Time) error {
	const query = `
		UPDATE auth_sessions
		SET refresh_token_hash = $2, expires_at = $3, last_seen_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, id, refreshHash, expiresAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAuthSessionNotFound
	}
	return nil
}

func (r *AuthSessionRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM auth_sessions WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAuthSessionNotFound
	}
	return nil
}

func (r *AuthSessionRepository) Touch(ctx context.Context, id string, ip string, userAgent string) error {
	const query = `
		UPDATE auth_sessions
		SET last_seen_at = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address),
		    user_agent = COALESCE(NULLIF($3, ''), user_agent)
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, ip, userAgent)
	return err
}
