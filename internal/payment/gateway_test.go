package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimulatedMpesa(t *testing.T) {
	gw := SimulatedMpesa{}
	a, err := gw.Charge(context.Background(), Charge{Phone: "+255712345678", Amount: decimal.NewFromInt(2000)})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	b, _ := gw.Charge(context.Background(), Charge{Phone: "+255712345678", Amount: decimal.NewFromInt(2000)})
	if !strings.HasPrefix(a.TransactionID, "MPESA") {
		t.Errorf("expected MPESA prefix, got %s", a.TransactionID)
	}
	if a.TransactionID == b.TransactionID {
		t.Error("expected distinct transaction ids")
	}
}

func TestSimulatedMpesaDeclinesNegative(t *testing.T) {
	_, err := SimulatedMpesa{}.Charge(context.Background(), Charge{Amount: decimal.NewFromInt(-1)})
	if !errors.Is(err, ErrDeclined) {
		t.Errorf("expected ErrDeclined, got %v", err)
	}
}
