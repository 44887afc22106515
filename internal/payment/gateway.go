// Package payment charges mobile-money customers for access packages.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"wifiportal/internal/ids"
)

var ErrDeclined = errors.New("payment declined")

type Charge struct {
	Phone     string
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

type Receipt struct {
	TransactionID string
}

type Gateway interface {
	Charge(ctx context.Context, charge Charge) (Receipt, error)
}

// SimulatedMpesa approves every charge and returns an M-Pesa style
// transaction id. No money moves.
type SimulatedMpesa struct{}

func (SimulatedMpesa) Charge(ctx context.Context, charge Charge) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if charge.Amount.IsNegative() {
		return Receipt{}, ErrDeclined
	}
	return Receipt{TransactionID: "MPESA" + strings.ToUpper(ids.New())}, nil
}
