package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"wifiportal/internal/models"
)

type ExportRepository struct {
	db DBTX
}

func NewExportRepository(db DBTX) *ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) Upsert(ctx context.Context, export models.VoucherExport) error {
	const query = `
		INSERT INTO voucher_exports (batch_id, bucket, object_key, row_count, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (batch_id) DO UPDATE SET
			bucket = EXCLUDED.bucket,
			object_key = EXCLUDED.object_key,
			row_count = EXCLUDED.row_count,
			created_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, export.BatchID, export.Bucket, export.ObjectKey, export.Rows)
	return err
}

func (r *ExportRepository) Get(ctx context.Context, batchID string) (models.VoucherExport, error) {
	const query = `
		SELECT batch_id, bucket, object_key, row_count, created_at
		FROM voucher_exports WHERE batch_id = $1
	`
	var export models.VoucherExport
	if err := r.db.QueryRow(ctx, query, batchID).Scan(
		&export.BatchID,
		&export.Bucket,
		&export.ObjectKey,
		&export.Rows,
		&export.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VoucherExport{}, ErrExportNotFound
		}
		return models.VoucherExport{}, err
	}
	return export, nil
}
