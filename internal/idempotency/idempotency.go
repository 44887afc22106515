// Package idempotency deduplicates client retries of purchase and redeem
// requests that carry an Idempotency-Key header.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type State int

const (
	// Reserved means the caller owns the key and must Commit or Abort.
	Reserved State = iota
	// Pending means another request holds the key and has not finished.
	Pending
	// Done means an earlier request finished; Value holds its result.
	Done
)

// Result describes what an earlier request left under the key. Fingerprint
// identifies that request's input so a reused key can be told apart from a
// genuine retry.
type Result struct {
	State       State
	Value       string
	Fingerprint string
}

type Deduplicator interface {
	Reserve(ctx context.Context, scope, key, fingerprint string) (Result, error)
	Commit(ctx context.Context, scope, key, fingerprint, value string) error
	Abort(ctx context.Context, scope, key string) error
}

const (
	pendingPrefix = "pending:"
	donePrefix    = "done:"
)

func storageKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

func pending(fingerprint string) string {
	return pendingPrefix + fingerprint
}

// done stores "<fingerprint>:<value>"; fingerprints never contain a colon.
func done(fingerprint, value string) string {
	return donePrefix + fingerprint + ":" + value
}

func decode(raw string) Result {
	if rest, ok := strings.CutPrefix(raw, donePrefix); ok {
		fp, value, _ := strings.Cut(rest, ":")
		return Result{State: Done, Value: value, Fingerprint: fp}
	}
	return Result{State: Pending, Fingerprint: strings.TrimPrefix(raw, pendingPrefix)}
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// reserveAttempts bounds the SETNX/GET pair; the key can expire in between.
const reserveAttempts = 2

func (r *Redis) Reserve(ctx context.Context, scope, key, fingerprint string) (Result, error) {
	k := storageKey(scope, key)
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := r.client.SetNX(ctx, k, pending(fingerprint), r.ttl).Result()
		if err != nil {
			return Result{}, fmt.Errorf("reserve %s: %w", k, err)
		}
		if ok {
			return Result{State: Reserved, Fingerprint: fingerprint}, nil
		}

		raw, err := r.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("lookup %s: %w", k, err)
		}
		return decode(raw), nil
	}
	return Result{}, fmt.Errorf("reserve %s: key expired while reading", k)
}

func (r *Redis) Commit(ctx context.Context, scope, key, fingerprint, value string) error {
	k := storageKey(scope, key)
	if err := r.client.Set(ctx, k, done(fingerprint, value), r.ttl).Err(); err != nil {
		return fmt.Errorf("commit %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Abort(ctx context.Context, scope, key string) error {
	k := storageKey(scope, key)
	if err := r.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("abort %s: %w", k, err)
	}
	return nil
}

// sweepThreshold is the entry count at which Reserve drops expired keys.
const sweepThreshold = 1024

// Memory is the single-process fallback used when redis is disabled.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	raw       string
	expiresAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (m *Memory) Reserve(ctx context.Context, scope, key, fingerprint string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := storageKey(scope, key)
	now := m.now()
	if e, ok := m.entries[k]; ok && now.Before(e.expiresAt) {
		return decode(e.raw), nil
	}
	if len(m.entries) >= sweepThreshold {
		m.evict(now)
	}
	m.entries[k] = memoryEntry{raw: pending(fingerprint), expiresAt: now.Add(m.ttl)}
	return Result{State: Reserved, Fingerprint: fingerprint}, nil
}

// evict must be called with mu held.
func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) Commit(ctx context.Context, scope, key, fingerprint, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[storageKey(scope, key)] = memoryEntry{raw: done(fingerprint, value), expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Abort(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, storageKey(scope, key))
	return nil
}
