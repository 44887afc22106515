package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wifiportal/internal/config"
	"wifiportal/internal/ids"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.ID)
	return h.err
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func newTestConsumer(handler MessageHandler) (*Consumer, *[]string) {
	c := NewConsumer(nil, config.QueueConfig{Stream: "tasks", Group: "workers", Consumer: "w1"}, zerolog.Nop(), handler)
	acked := &[]string{}
	c.ack = func(_ context.Context, id string) error {
		*acked = append(*acked, id)
		return nil
	}
	return c, acked
}

func TestProcessAcksOnSuccess(t *testing.T) {
	handler := &recordingHandler{}
	c, acked := newTestConsumer(handler)

	c.process(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": TaskExpireSessions}})

	if got := handler.ids(); len(got) != 1 || got[0] != "1-0" {
		t.Errorf("expected handler to see 1-0, got %v", got)
	}
	if len(*acked) != 1 || (*acked)[0] != "1-0" {
		t.Errorf("expected 1-0 to be acked, got %v", *acked)
	}
}

func TestProcessLeavesFailedPending(t *testing.T) {
	handler := &recordingHandler{err: errors.New("store down")}
	c, acked := newTestConsumer(handler)

	c.process(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]interface{}{"type": TaskVoucherExport}})

	if len(handler.ids()) != 1 {
		t.Fatalf("expected one delivery, got %v", handler.ids())
	}
	if len(*acked) != 0 {
		t.Errorf("expected failed message to stay pending, got acks %v", *acked)
	}
}

func TestProcessAckFailureIsLogged(t *testing.T) {
	c, _ := newTestConsumer(&recordingHandler{})
	calls := 0
	c.ack = func(context.Context, string) error {
		calls++
		return errors.New("connection reset")
	}

	c.process(context.Background(), redis.XMessage{ID: "3-0"})
	if calls != 1 {
		t.Errorf("expected one ack attempt, got %d", calls)
	}
}

// TestClaimStalled needs a live redis; a message read by one consumer and
// never acked must be handed to another once it has idled past minIdle.
func TestClaimStalled(t *testing.T) {
	addr := os.Getenv("PORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTAL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	stream := "test-tasks-" + ids.New()
	defer client.Del(ctx, stream)

	cfg := config.QueueConfig{Stream: stream, Group: "workers", Consumer: "w1", ClaimInterval: time.Second, MinIdle: 10 * time.Millisecond}
	failing := &recordingHandler{err: errors.New("crash")}
	first := NewConsumer(client, cfg, zerolog.Nop(), failing)
	if err := first.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := first.EnsureGroup(ctx); err != nil {
		t.Fatalf("expected EnsureGroup to tolerate an existing group, got %v", err)
	}

	if err := NewProducer(client, stream).Enqueue(ctx, TaskExpireSessions, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := first.read(ctx); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(failing.ids()) != 1 {
		t.Fatalf("expected first consumer to receive the task, got %v", failing.ids())
	}

	time.Sleep(50 * time.Millisecond)

	cfg.Consumer = "w2"
	healthy := &recordingHandler{}
	second := NewConsumer(client, cfg, zerolog.Nop(), healthy)
	if err := second.claimStalled(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := healthy.ids(); len(got) != 1 || got[0] != failing.ids()[0] {
		t.Fatalf("expected second consumer to take over %v, got %v", failing.ids(), got)
	}

	pending, err := client.XPending(ctx, stream, cfg.Group).Result()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected nothing pending after takeover, got %d", pending.Count)
	}
}
