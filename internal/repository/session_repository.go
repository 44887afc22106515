package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wifiportal/internal/models"
)

// SessionRepository stores network access sessions.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO sessions (
			id, user_id, order_id, voucher_id, hotspot_id, start_time, expiry_time, is_active, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $6
		)
	`
	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.OrderID,
		session.VoucherID,
		session.HotspotID,
		session.StartTime,
		session.ExpiryTime,
		session.IsActive,
	)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	const query = `
		SELECT id, user_id, order_id, voucher_id, hotspot_id, start_time, expiry_time, is_active, created_at
		FROM sessions WHERE id = $1
	`

	var session models.Session
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.OrderID,
		&session.VoucherID,
		&session.HotspotID,
		&session.StartTime,
		&session.ExpiryTime,
		&session.IsActive,
		&session.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE sessions SET is_active = FALSE
		WHERE is_active AND expiry_time <= $1
	`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) CountActive(ctx context.Context, userID *string, now time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM sessions
		WHERE is_active AND expiry_time > $2 AND ($1::text IS NULL OR user_id = $1)
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) Recent(ctx context.Context, userID *string, limit int) ([]models.SessionView, error) {
	const query = `
		SELECT s.id, s.user_id, s.order_id, s.voucher_id, s.hotspot_id, s.start_time,
		       s.expiry_time, s.is_active, s.created_at, h.name, h.location
		FROM sessions s
		LEFT JOIN hotspots h ON h.id = s.hotspot_id
		WHERE $1::text IS NULL OR s.user_id = $1
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.SessionView
	for rows.Next() {
		var view models.SessionView
		if err := rows.Scan(
			&view.ID,
			&view.UserID,
			&view.OrderID,
			&view.VoucherID,
			&view.HotspotID,
			&view.StartTime,
			&view.ExpiryTime,
			&view.IsActive,
			&view.CreatedAt,
			&view.HotspotName,
			&view.HotspotLocation,
		); err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}
