package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Voucher struct {
	ID              string
	Code            string
	BatchID         *string
	DurationMinutes int
	Used            bool
	UsedAt          *time.Time
	UsedBy          *string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// Redeemable reports whether the voucher can still be claimed at now.
func (v Voucher) Redeemable(now time.Time) bool {
	return !v.Used && now.Before(v.ExpiresAt)
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type Order struct {
	ID            string
	UserID        *string
	PhoneNumber   string
	PackageID     string
	PackageName   string
	Amount        decimal.Decimal
	Currency      string
	Status        OrderStatus
	TransactionID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session is a network access grant. Exactly one of OrderID and VoucherID is set.
type Session struct {
	ID         string
	UserID     *string
	OrderID    *string
	VoucherID  *string
	HotspotID  *string
	StartTime  time.Time
	ExpiryTime time.Time
	IsActive   bool
	CreatedAt  time.Time
}

// ActiveAt derives liveness from the expiry time; IsActive alone may lag
// until the next sweep.
func (s Session) ActiveAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiryTime)
}

func (s Session) Remaining(now time.Time) time.Duration {
	if !s.ActiveAt(now) {
		return 0
	}
	return s.ExpiryTime.Sub(now)
}

type Hotspot struct {
	ID        string
	Name      string
	Location  string
	IPOrMAC   *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionView joins a session with the hotspot it was granted on.
type SessionView struct {
	Session
	HotspotName     *string
	HotspotLocation *string
}

type VoucherExport struct {
	BatchID   string
	Bucket    string
	ObjectKey string
	Rows      int
	CreatedAt time.Time
}
