// Package memory is an in-process repository.Store. Transactions serialise on
// one mutex and work on a copy of the data that replaces the live copy only
// when the callback succeeds.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"wifiportal/internal/models"
	"wifiportal/internal/repository"
)

type data struct {
	users        map[string]models.User
	profiles     map[string]models.Profile
	authSessions map[string]models.AuthSession
	hotspots     map[string]models.Hotspot
	vouchers     map[string]models.Voucher
	codes        map[string]string
	orders       map[string]models.Order
	sessions     map[string]models.Session
	exports      map[string]models.VoucherExport
}

func newData() *data {
	return &data{
		users:        map[string]models.User{},
		profiles:     map[string]models.Profile{},
		authSessions: map[string]models.AuthSession{},
		hotspots:     map[string]models.Hotspot{},
		vouchers:     map[string]models.Voucher{},
		codes:        map[string]string{},
		orders:       map[string]models.Order{},
		sessions:     map[string]models.Session{},
		exports:      map[string]models.VoucherExport{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	return &data{
		users:        cloneMap(d.users),
		profiles:     cloneMap(d.profiles),
		authSessions: cloneMap(d.authSessions),
		hotspots:     cloneMap(d.hotspots),
		vouchers:     cloneMap(d.vouchers),
		codes:        cloneMap(d.codes),
		orders:       cloneMap(d.orders),
		sessions:     cloneMap(d.sessions),
		exports:      cloneMap(d.exports),
	}
}

type Store struct {
	mu    sync.Mutex
	state *data

	faultMu sync.Mutex
	faults  map[string]error

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state:  newData(),
		faults: map[string]error{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the time used for columns the database would default to NOW().
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Fail makes every later call of op return err. Ops are named
// "<table>.<method>", e.g. "sessions.create". A nil err clears the fault.
func (s *Store) Fail(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

func (s *Store) Repos() repository.Set {
	return s.set(handle{store: s})
}

func (s *Store) InTx(ctx context.Context, fn func(repository.Set) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fault("tx.begin"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(s.set(handle{store: s, tx: tx})); err != nil {
		return err
	}
	if err := s.fault("tx.commit"); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fault("ping")
}

func (s *Store) set(h handle) repository.Set {
	return repository.Set{
		Users:        userRepo{h},
		Profiles:     profileRepo{h},
		AuthSessions: authSessionRepo{h},
		Hotspots:     hotspotRepo{h},
		Vouchers:     voucherRepo{h},
		Orders:       orderRepo{h},
		Sessions:     sessionRepo{h},
		Exports:      exportRepo{h},
	}
}

// handle routes an operation to the transaction copy when there is one and
// to the locked live copy otherwise.
type handle struct {
	store *Store
	tx    *data
}

func (h handle) do(ctx context.Context, op string, fn func(d *data) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.store.fault(op); err != nil {
		return err
	}
	if h.tx != nil {
		return fn(h.tx)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.state)
}

func (h handle) now() time.Time {
	return h.store.now()
}

var errConstraint = errors.New("memory: constraint violation")

func upper(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
