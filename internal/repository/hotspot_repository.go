package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"wifiportal/internal/models"
)

type HotspotRepository struct {
	db DBTX
}

func NewHotspotRepository(db DBTX) *HotspotRepository {
	return &HotspotRepository{db: db}
}

const hotspotColumns = `id, name, location, ip_or_mac, is_active, created_at, updated_at`

func (r *HotspotRepository) Create(ctx context.Context, hotspot models.Hotspot) error {
	const query = `
		INSERT INTO hotspots (id, name, location, ip_or_mac, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		hotspot.ID,
		hotspot.Name,
		hotspot.Location,
		hotspot.IPOrMAC,
		hotspot.IsActive,
	)
	return err
}

func (r *HotspotRepository) Update(ctx context.Context, hotspot models.Hotspot) error {
	const query = `
		UPDATE hotspots
		SET name = $2, location = $3, ip_or_mac = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query,
		hotspot.ID,
		hotspot.Name,
		hotspot.Location,
		hotspot.IPOrMAC,
		hotspot.IsActive,
	)
}

func (r *HotspotRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE hotspots SET is_active = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, active)
}

func (r *HotspotRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM hotspots WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *HotspotRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrHotspotNotFound
	}
	return nil
}

func (r *HotspotRepository) GetByID(ctx context.Context, id string) (models.Hotspot, error) {
	const query = `SELECT ` + hotspotColumns + ` FROM hotspots WHERE id = $1`

	var hotspot models.Hotspot
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&hotspot.ID,
		&hotspot.Name,
		&hotspot.Location,
		&hotspot.IPOrMAC,
		&hotspot.IsActive,
		&hotspot.CreatedAt,
		&hotspot.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Hotspot{}, ErrHotspotNotFound
		}
		return models.Hotspot{}, err
	}
	return hotspot, nil
}

func (r *HotspotRepository) List(ctx context.Context, activeOnly bool) ([]models.Hotspot, error) {
	const query = `
		SELECT ` + hotspotColumns + `
		FROM hotspots
		WHERE is_active OR NOT $1
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hotspots []models.Hotspot
	for rows.Next() {
		var hotspot models.Hotspot
		if err := rows.Scan(
			&hotspot.ID,
			&hotspot.Name,
			&hotspot.Location,
			&hotspot.IPOrMAC,
			&hotspot.IsActive,
			&hotspot.CreatedAt,
			&hotspot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		hotspots = append(hotspots, hotspot)
	}
	return hotspots, rows.Err()
}

func (r *HotspotRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM hotspots`
	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
