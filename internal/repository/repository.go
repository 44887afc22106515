package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"wifiportal/internal/models"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrAuthSessionNotFound = errors.New("auth session not found")
	ErrHotspotNotFound     = errors.New("hotspot not found")
	ErrVoucherNotFound     = errors.New("voucher not found")
	// ErrVoucherUnavailable covers unknown, used and expired codes alike.
	ErrVoucherUnavailable = errors.New("voucher unavailable")
	ErrSessionNotFound    = errors.New("session not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrExportNotFound     = errors.New("export not found")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Page struct {
	Limit  int
	Offset int
}

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

type ProfileStore interface {
	Create(ctx context.Context, profile models.Profile) error
	GetByID(ctx context.Context, id string) (models.Profile, error)
	Count(ctx context.Context) (int, error)
}

type AuthSessionStore interface {
	Create(ctx context.Context, session models.AuthSession) error
	GetByID(ctx context.Context, id string) (models.AuthSession, error)
	FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (models.AuthSession, error)
	Rotate(ctx context.Context, id string, refreshHash []byte, expiresAt time.Time) error
	Touch(ctx context.Context, id string, ip string, userAgent string) error
	DeleteByID(ctx context.Context, id string) error
	DeleteOldest(ctx context.Context, userID string, keepLatest int) error
}

type HotspotStore interface {
	Create(ctx context.Context, hotspot models.Hotspot) error
	Update(ctx context.Context, hotspot models.Hotspot) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (models.Hotspot, error)
	List(ctx context.Context, activeOnly bool) ([]models.Hotspot, error)
	Count(ctx context.Context) (int, error)
}

type VoucherStore interface {
	// Insert reports false when the code already exists, ignoring case.
	Insert(ctx context.Context, voucher models.Voucher) (bool, error)
	// Claim marks the voucher used if it is unused and unexpired at now.
	Claim(ctx context.Context, code string, now time.Time, usedBy *string) (models.Voucher, error)
	GetByCode(ctx context.Context, code string) (models.Voucher, error)
	List(ctx context.Context, page Page) ([]models.Voucher, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.Voucher, error)
}

type OrderStore interface {
	Create(ctx context.Context, order models.Order) error
	GetByID(ctx context.Context, id string) (models.Order, error)
	Recent(ctx context.Context, userID *string, limit int) ([]models.Order, error)
	Revenue(ctx context.Context) (decimal.Decimal, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	// ExpireDue flips is_active off for rows whose expiry is at or before now.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, userID *string, now time.Time) (int, error)
	Recent(ctx context.Context, userID *string, limit int) ([]models.SessionView, error)
}

type ExportStore interface {
	Upsert(ctx context.Context, export models.VoucherExport) error
	Get(ctx context.Context, batchID string) (models.VoucherExport, error)
}

// Set groups the repositories bound to one connection or transaction.
type Set struct {
	Users        UserStore
	Profiles     ProfileStore
	AuthSessions AuthSessionStore
	Hotspots     HotspotStore
	Vouchers     VoucherStore
	Orders       OrderStore
	Sessions     SessionStore
	Exports      ExportStore
}

// Store is the persistence boundary used by the services.
type Store interface {
	Repos() Set
	// InTx runs fn in a single transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(Set) error) error
	Ping(ctx context.Context) error
}
