package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Redeemed("ok")
	m.Redeemed("ok")
	m.Redeemed("invalid")
	m.Expired(3)
	m.Expired(0)

	if got := testutil.ToFloat64(m.Redemptions.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok redemptions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsExpired); got != 3 {
		t.Errorf("expected 3 expired sessions, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Redeemed("ok")
	m.Purchased("ok")
	m.Expired(1)
	m.Generated(1)
}
