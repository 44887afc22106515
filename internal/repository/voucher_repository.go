package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wifiportal/internal/models"
)

type VoucherRepository struct {
	db DBTX
}

func NewVoucherRepository(db DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

const voucherColumns = `id, code, batch_id, duration_minutes, used, used_at, used_by, expires_at, created_at`

func (r *VoucherRepository) Insert(ctx context.Context, voucher models.Voucher) (bool, error) {
	const query = `
		INSERT INTO vouchers (
			id, code, batch_id, duration_minutes, used, expires_at, created_at
		) VALUES (
			$1, upper($2), $3, $4, FALSE, $5, NOW()
		)
		ON CONFLICT DO NOTHING
	`

	cmd, err := r.db.Exec(ctx, query,
		voucher.ID,
		voucher.Code,
		voucher.BatchID,
		voucher.DurationMinutes,
		voucher.ExpiresAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// Claim is a single conditional update so two concurrent claims of one code
// cannot both succeed.
func (r *VoucherRepository) Claim(ctx context.Context, code string, now time.Time, usedBy *string) (models.Voucher, error) {
	const query = `
		UPDATE vouchers
		SET used = TRUE, used_at = $2, used_by = $3
		WHERE upper(code) = upper($1) AND used = FALSE AND expires_at > $2
		RETURNING ` + voucherColumns

	voucher, err := scanVoucher(r.db.QueryRow(ctx, query, code, now, usedBy))
	if errors.Is(err, ErrVoucherNotFound) {
		return models.Voucher{}, ErrVoucherUnavailable
	}
	return voucher, err
}

func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (models.Voucher, error) {
	const query = `SELECT ` + voucherColumns + ` FROM vouchers WHERE upper(code) = upper($1)`
	return scanVoucher(r.db.QueryRow(ctx, query, code))
}

func (r *VoucherRepository) List(ctx context.Context, page Page) ([]models.Voucher, error) {
	const query = `
		SELECT ` + voucherColumns + `
		FROM vouchers
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return collectVouchers(rows)
}

func (r *VoucherRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Voucher, error) {
	const query = `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE batch_id = $1
		ORDER BY code
	`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	return collectVouchers(rows)
}

func scanVoucher(row pgx.Row) (models.Voucher, error) {
	var voucher models.Voucher
	if err := row.Scan(
		&voucher.ID,
		&voucher.Code,
		&voucher.BatchID,
		&voucher.DurationMinutes,
		&voucher.Used,
		&voucher.UsedAt,
		&voucher.UsedBy,
		&voucher.ExpiresAt,
		&voucher.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Voucher{}, ErrVoucherNotFound
		}
		return models.Voucher{}, err
	}
	return voucher, nil
}

func collectVouchers(rows pgx.Rows) ([]models.Voucher, error) {
	defer rows.Close()

	var vouchers []models.Voucher
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, voucher)
	}
	return vouchers, rows.Err()
}
