// Package catalog holds the fixed access packages sold at the portal.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

const Currency = "TZS"

type Package struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Minutes     int             `json:"durationMinutes"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

func (p Package) Duration() time.Duration {
	return time.Duration(p.Minutes) * time.Minute
}

var packages = []Package{
	{
		ID:          "daily",
		Name:        "Daily Pass",
		Minutes:     1440,
		Price:       decimal.NewFromInt(2000),
		Currency:    Currency,
		Description: "24 hours of unlimited access",
	},
	{
		ID:          "3day",
		Name:        "3-Day Pass",
		Minutes:     4320,
		Price:       decimal.NewFromInt(5000),
		Currency:    Currency,
		Description: "72 hours of unlimited access",
	},
	{
		ID:          "weekly",
		Name:        "Weekly Pass",
		Minutes:     10080,
		Price:       decimal.NewFromInt(10000),
		Currency:    Currency,
		Description: "7 days of unlimited access",
	},
}

// All returns a copy in display order.
func All() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

func Lookup(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
