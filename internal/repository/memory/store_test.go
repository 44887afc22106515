package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"wifiportal/internal/models"
	"wifiportal/internal/repository"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New().WithClock(func() time.Time { return t0 })

	boom := errors.New("boom")
	err := store.InTx(ctx, func(repos repository.Set) error {
		if err := repos.Hotspots.Create(ctx, models.Hotspot{ID: "h1", Name: "A", Location: "B", IsActive: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Repos().Hotspots.GetByID(ctx, "h1"); !errors.Is(err, repository.ErrHotspotNotFound) {
		t.Errorf("expected hotspot to be rolled back, got %v", err)
	}
}

func TestInTxCommitFault(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.Fail("tx.commit", errors.New("commit lost"))

	err := store.InTx(ctx, func(repos repository.Set) error {
		return repos.Hotspots.Create(ctx, models.Hotspot{ID: "h1", Name: "A", Location: "B"})
	})
	if err == nil {
		t.Fatal("expected commit failure")
	}
	store.Fail("tx.commit", nil)
	if n, _ := store.Repos().Hotspots.Count(ctx); n != 0 {
		t.Errorf("expected nothing committed, got %d hotspots", n)
	}
}

func TestVoucherCodesAreCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()

	ok, err := repos.Vouchers.Insert(ctx, models.Voucher{ID: "v1", Code: "abcd-efgh-jkmn", DurationMinutes: 60, ExpiresAt: t0.Add(time.Hour)})
	if err != nil || !ok {
		t.Fatalf("insert: %v %v", ok, err)
	}
	ok, err = repos.Vouchers.Insert(ctx, models.Voucher{ID: "v2", Code: "ABCD-EFGH-JKMN", DurationMinutes: 60, ExpiresAt: t0.Add(time.Hour)})
	if err != nil || ok {
		t.Errorf("expected upper-case duplicate to be rejected, got %v %v", ok, err)
	}

	v, err := repos.Vouchers.Claim(ctx, "Abcd-Efgh-Jkmn", t0, nil)
	if err != nil || v.ID != "v1" || !v.Used {
		t.Fatalf("claim: %+v %v", v, err)
	}
	if _, err := repos.Vouchers.Claim(ctx, "ABCD-EFGH-JKMN", t0, nil); !errors.Is(err, repository.ErrVoucherUnavailable) {
		t.Errorf("expected second claim to fail, got %v", err)
	}
}

func TestSessionConstraints(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	voucherID, orderID := "v1", "o1"

	cases := []struct {
		name    string
		session models.Session
	}{
		{"no source", models.Session{ID: "s1", StartTime: t0, ExpiryTime: t0.Add(time.Hour)}},
		{"both sources", models.Session{ID: "s2", OrderID: &orderID, VoucherID: &voucherID, StartTime: t0, ExpiryTime: t0.Add(time.Hour)}},
		{"expiry before start", models.Session{ID: "s3", OrderID: &orderID, StartTime: t0, ExpiryTime: t0}},
	}
	for _, tc := range cases {
		if err := repos.Sessions.Create(ctx, tc.session); err == nil {
			t.Errorf("%s: expected constraint violation", tc.name)
		}
	}

	first := models.Session{ID: "s4", VoucherID: &voucherID, StartTime: t0, ExpiryTime: t0.Add(time.Hour), IsActive: true}
	if err := repos.Sessions.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := first
	second.ID = "s5"
	if err := repos.Sessions.Create(ctx, second); err == nil {
		t.Error("expected a voucher to back at most one session")
	}
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.Fail("ping", errors.New("down"))
	if err := store.Ping(ctx); err == nil {
		t.Error("expected ping failure")
	}
	store.Fail("ping", nil)
	if err := store.Ping(ctx); err != nil {
		t.Errorf("expected ping to recover, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Repos().Hotspots.List(cancelled, true); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}
