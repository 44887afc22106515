package idempotency

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"wifiportal/internal/ids"
)

func exercise(t *testing.T, d Deduplicator) {
	t.Helper()
	ctx := context.Background()
	key := ids.New()

	res, err := d.Reserve(ctx, "redeem", key, "fp-a")
	if err != nil || res.State != Reserved {
		t.Fatalf("expected Reserved, got %v (%v)", res.State, err)
	}
	res, _ = d.Reserve(ctx, "redeem", key, "fp-a")
	if res.State != Pending || res.Fingerprint != "fp-a" {
		t.Fatalf("expected Pending with fp-a while in flight, got %+v", res)
	}
	res, _ = d.Reserve(ctx, "purchase", key, "fp-b")
	if res.State != Reserved {
		t.Fatalf("expected scopes to be independent, got %v", res.State)
	}

	if err := d.Commit(ctx, "redeem", key, "fp-a", "session-1"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, _ = d.Reserve(ctx, "redeem", key, "fp-other")
	if res.State != Done || res.Value != "session-1" || res.Fingerprint != "fp-a" {
		t.Fatalf("expected Done with session-1 under fp-a, got %+v", res)
	}

	if err := d.Abort(ctx, "purchase", key); err != nil {
		t.Fatalf("abort: %v", err)
	}
	res, _ = d.Reserve(ctx, "purchase", key, "fp-b")
	if res.State != Reserved {
		t.Fatalf("expected Reserved after abort, got %v", res.State)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		raw  string
		want Result
	}{
		{raw: done("abc", "sess:1"), want: Result{State: Done, Value: "sess:1", Fingerprint: "abc"}},
		{raw: pending("abc"), want: Result{State: Pending, Fingerprint: "abc"}},
		{raw: done("", "s"), want: Result{State: Done, Value: "s"}},
	}
	for _, tc := range cases {
		if got := decode(tc.raw); got != tc.want {
			t.Errorf("%q: expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory(time.Hour))
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	_, _ = m.Reserve(ctx, "redeem", "k", "fp")
	_ = m.Commit(ctx, "redeem", "k", "fp", "s")

	now = now.Add(2 * time.Minute)
	res, _ := m.Reserve(ctx, "redeem", "k", "fp")
	if res.State != Reserved {
		t.Errorf("expected expired entry to be reclaimable, got %v", res.State)
	}
}

func TestMemoryEvictsExpired(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < sweepThreshold; i++ {
		_, _ = m.Reserve(ctx, "redeem", fmt.Sprintf("k-%d", i), "fp")
	}
	if len(m.entries) != sweepThreshold {
		t.Fatalf("expected %d entries, got %d", sweepThreshold, len(m.entries))
	}

	now = now.Add(2 * time.Minute)
	if res, _ := m.Reserve(ctx, "redeem", "fresh", "fp"); res.State != Reserved {
		t.Fatalf("expected Reserved, got %v", res.State)
	}
	if len(m.entries) != 1 {
		t.Errorf("expected expired entries to be dropped, got %d", len(m.entries))
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTAL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	exercise(t, NewRedis(client, time.Minute))
}
