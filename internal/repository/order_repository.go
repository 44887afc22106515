package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wifiportal/internal/models"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order models.Order) error {
	const query = `
		INSERT INTO orders (
			id, user_id, phone_number, package_id, package_name, amount, currency,
			status, transaction_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $10
		)
	`
	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.PhoneNumber,
		order.PackageID,
		order.PackageName,
		order.Amount.String(),
		order.Currency,
		order.Status,
		order.TransactionID,
		order.CreatedAt,
	)
	return err
}

const orderColumns = `id, user_id, phone_number, package_id, package_name, amount::text, currency,
	status, transaction_id, created_at, updated_at`

func (r *OrderRepository) GetByID(ctx context.Context, id string) (models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, ErrOrderNotFound
	}
	return order, err
}

// Recent lists the newest orders, optionally for a single user.
func (r *OrderRepository) Recent(ctx context.Context, userID *string, limit int) ([]models.Order, error) {
	const query = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE $1::text IS NULL OR user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		order  models.Order
		amount string
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.PhoneNumber,
		&order.PackageID,
		&order.PackageName,
		&amount,
		&order.Currency,
		&order.Status,
		&order.TransactionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return models.Order{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s amount: %w", order.ID, err)
	}
	order.Amount = parsed
	return order, nil
}

// Revenue sums completed orders only.
func (r *OrderRepository) Revenue(ctx context.Context) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM orders WHERE status = 'completed'`
	var total string
	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}
