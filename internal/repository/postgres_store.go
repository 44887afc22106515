package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	set  Set
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, set: newSet(pool)}
}

func newSet(db DBTX) Set {
	return Set{
		Users:        NewUserRepository(db),
		Profiles:     NewProfileRepository(db),
		AuthSessions: NewAuthSessionRepository(db),
		Hotspots:     NewHotspotRepository(db),
		Vouchers:     NewVoucherRepository(db),
		Orders:       NewOrderRepository(db),
		Sessions:     NewSessionRepository(db),
		Exports:      NewExportRepository(db),
	}
}

func (s *PostgresStore) Repos() Set {
	return s.set
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Set) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newSet(tx))
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsTransient reports errors after which an idempotent statement may be
// retried: connection failures and errors pgconn marks safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
