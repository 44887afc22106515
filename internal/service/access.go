package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wifiportal/internal/catalog"
	"wifiportal/internal/config"
	"wifiportal/internal/countdown"
	"wifiportal/internal/idempotency"
	"wifiportal/internal/ids"
	"wifiportal/internal/metrics"
	"wifiportal/internal/models"
	"wifiportal/internal/payment"
	"wifiportal/internal/repository"
	"wifiportal/internal/vouchercode"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

const maxIdempotencyKey = 128

// AccessService manages the lifecycle of network access sessions: creation
// from purchases and vouchers, expiry, and voucher batch generation.
type AccessService struct {
	store   repository.Store
	gateway payment.Gateway
	codes   vouchercode.Generator
	dedup   idempotency.Deduplicator
	metrics *metrics.Metrics
	cfg     config.AccessConfig
	log     zerolog.Logger
	now     func() time.Time
}

type AccessOption func(*AccessService)

func WithClock(now func() time.Time) AccessOption {
	return func(s *AccessService) { s.now = now }
}

func WithGateway(gw payment.Gateway) AccessOption {
	return func(s *AccessService) { s.gateway = gw }
}

func WithCodeGenerator(g vouchercode.Generator) AccessOption {
	return func(s *AccessService) { s.codes = g }
}

func WithDeduplicator(d idempotency.Deduplicator) AccessOption {
	return func(s *AccessService) { s.dedup = d }
}

func WithMetrics(m *metrics.Metrics) AccessOption {
	return func(s *AccessService) { s.metrics = m }
}

func NewAccessService(store repository.Store, cfg config.AccessConfig, log zerolog.Logger, opts ...AccessOption) *AccessService {
	s := &AccessService{
		store:   store,
		gateway: payment.SimulatedMpesa{},
		codes:   vouchercode.New(),
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxBatch <= 0 {
		s.cfg.MaxBatch = 100
	}
	if s.cfg.CodeAttempts <= 0 {
		s.cfg.CodeAttempts = 5
	}
	return s
}

// Now is the clock session liveness is judged against.
func (s *AccessService) Now() time.Time {
	return s.now()
}

type RedeemInput struct {
	Code           string
	IdempotencyKey string
}

func (s *AccessService) RedeemVoucher(ctx context.Context, actor Actor, input RedeemInput) (models.Session, error) {
	code := vouchercode.Normalize(input.Code)
	if code == "" {
		return models.Session{}, invalidf("voucher code required")
	}
	if !vouchercode.WellFormed(code) {
		s.log.Debug().Int("length", len(code)).Msg("redeeming code outside generated layout")
	}

	return idempotent(ctx, s, actor, "redeem", input.IdempotencyKey, fingerprint(code),
		func() (models.Session, string, error) {
			session, err := s.redeem(ctx, actor, code)
			return session, session.ID, err
		},
		func(ctx context.Context, sessionID string) (models.Session, error) {
			return s.store.Repos().Sessions.GetByID(ctx, sessionID)
		},
	)
}

func (s *AccessService) redeem(ctx context.Context, actor Actor, code string) (models.Session, error) {
	now := s.now()

	var session models.Session
	err := s.store.InTx(ctx, func(repos repository.Set) error {
		voucher, err := repos.Vouchers.Claim(ctx, code, now, actor.UserID)
		if err != nil {
			return err
		}

		voucherID := voucher.ID
		session = models.Session{
			ID:         ids.New(),
			UserID:     actor.UserID,
			VoucherID:  &voucherID,
			StartTime:  now,
			ExpiryTime: now.Add(time.Duration(voucher.DurationMinutes) * time.Minute),
			IsActive:   true,
			CreatedAt:  now,
		}
		return repos.Sessions.Create(ctx, session)
	})
	if errors.Is(err, repository.ErrVoucherUnavailable) {
		s.metrics.Redeemed("invalid")
		return models.Session{}, ErrInvalidVoucher
	}
	if err != nil {
		s.metrics.Redeemed("error")
		return models.Session{}, unavailable(err)
	}

	s.metrics.Redeemed("ok")
	s.log.Info().
		Str("session_id", session.ID).
		Str("voucher_id", *session.VoucherID).
		Time("expiry_time", session.ExpiryTime).
		Msg("voucher redeemed")
	return session, nil
}

type PurchaseInput struct {
	Phone          string
	PackageID      string
	HotspotID      string
	IdempotencyKey string
}

type Purchase struct {
	Order   models.Order
	Session models.Session
}

func (s *AccessService) PurchaseSession(ctx context.Context, actor Actor, input PurchaseInput) (Purchase, error) {
	phone := strings.ReplaceAll(strings.TrimSpace(input.Phone), " ", "")
	packageID := strings.TrimSpace(input.PackageID)
	hotspotID := strings.TrimSpace(input.HotspotID)

	if phone == "" || packageID == "" || hotspotID == "" {
		return Purchase{}, invalidf("phone, package and hotspot are required")
	}
	if !phonePattern.MatchString(phone) {
		return Purchase{}, invalidf("phone number %q is not valid", input.Phone)
	}
	pkg, ok := catalog.Lookup(packageID)
	if !ok {
		return Purchase{}, invalidf("unknown package %q", packageID)
	}

	return idempotent(ctx, s, actor, "purchase", input.IdempotencyKey, fingerprint(phone, pkg.ID, hotspotID),
		func() (Purchase, string, error) {
			p, err := s.purchase(ctx, actor, phone, pkg, hotspotID)
			return p, p.Session.ID, err
		},
		s.replayPurchase,
	)
}

func (s *AccessService) purchase(ctx context.Context, actor Actor, phone string, pkg catalog.Package, hotspotID string) (Purchase, error) {
	if err := s.requireActiveHotspot(ctx, s.store.Repos(), hotspotID); err != nil {
		s.metrics.Purchased("invalid")
		return Purchase{}, err
	}

	orderID := ids.New()
	receipt, err := s.gateway.Charge(ctx, payment.Charge{
		Phone:     phone,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Reference: orderID,
	})
	if err != nil {
		s.metrics.Purchased("payment_failed")
		s.recordFailedOrder(ctx, actor, orderID, phone, pkg)
		return Purchase{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	now := s.now()
	txID := receipt.TransactionID
	order := models.Order{
		ID:            orderID,
		UserID:        actor.UserID,
		PhoneNumber:   phone,
		PackageID:     pkg.ID,
		PackageName:   pkg.Name,
		Amount:        pkg.Price,
		Currency:      pkg.Currency,
		Status:        models.OrderStatusCompleted,
		TransactionID: &txID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	session := models.Session{
		ID:         ids.New(),
		UserID:     actor.UserID,
		OrderID:    &order.ID,
		HotspotID:  &hotspotID,
		StartTime:  now,
		ExpiryTime: now.Add(pkg.Duration()),
		IsActive:   true,
		CreatedAt:  now,
	}

	err = s.store.InTx(ctx, func(repos repository.Set) error {
		// the hotspot may have been switched off while the charge ran
		if err := s.requireActiveHotspot(ctx, repos, hotspotID); err != nil {
			return err
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		return repos.Sessions.Create(ctx, session)
	})
	if err != nil {
		s.metrics.Purchased("error")
		if errors.Is(err, ErrInvalidInput) {
			s.log.Warn().Str("order_id", orderID).Str("transaction_id", txID).Msg("hotspot deactivated after charge")
			return Purchase{}, err
		}
		return Purchase{}, unavailable(err)
	}

	s.metrics.Purchased("ok")
	s.log.Info().
		Str("order_id", order.ID).
		Str("session_id", session.ID).
		Str("package_id", pkg.ID).
		Str("transaction_id", txID).
		Msg("package purchased")
	return Purchase{Order: order, Session: session}, nil
}

func (s *AccessService) requireActiveHotspot(ctx context.Context, repos repository.Set, id string) error {
	hotspot, err := repos.Hotspots.GetByID(ctx, id)
	if errors.Is(err, repository.ErrHotspotNotFound) {
		return invalidf("unknown hotspot %q", id)
	}
	if err != nil {
		return unavailable(err)
	}
	if !hotspot.IsActive {
		return invalidf("hotspot %q is not active", id)
	}
	return nil
}

func (s *AccessService) recordFailedOrder(ctx context.Context, actor Actor, orderID, phone string, pkg catalog.Package) {
	now := s.now()
	order := models.Order{
		ID:          orderID,
		UserID:      actor.UserID,
		PhoneNumber: phone,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		Amount:      pkg.Price,
		Currency:    pkg.Currency,
		Status:      models.OrderStatusFailed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Repos().Orders.Create(ctx, order); err != nil {
		s.log.Error().Err(err).Str("order_id", orderID).Msg("record failed order")
	}
}

func (s *AccessService) replayPurchase(ctx context.Context, sessionID string) (Purchase, error) {
	repos := s.store.Repos()
	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return Purchase{}, err
	}
	if session.OrderID == nil {
		return Purchase{}, fmt.Errorf("session %s has no order", sessionID)
	}
	order, err := repos.Orders.GetByID(ctx, *session.OrderID)
	if err != nil {
		return Purchase{}, err
	}
	return Purchase{Order: order, Session: session}, nil
}

// ExpireSessions deactivates every active session whose expiry has passed.
// Running it again without new expiries changes nothing.
func (s *AccessService) ExpireSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Repos().Sessions.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, unavailable(err)
	}
	s.metrics.Expired(n)
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("sessions expired")
	}
	return n, nil
}

type BatchInput struct {
	Quantity        int
	DurationMinutes int
	ValidityDays    int
}

type Batch struct {
	ID        string
	ExpiresAt time.Time
	Vouchers  []models.Voucher
}

// GenerateVoucherBatch creates Quantity unused vouchers sharing one batch id,
// duration and expiry. Either every voucher is stored or none is.
func (s *AccessService) GenerateVoucherBatch(ctx context.Context, actor Actor, input BatchInput) (Batch, error) {
	if !actor.IsAdmin() {
		return Batch{}, ErrUnauthorized
	}
	if input.Quantity < 1 || input.Quantity > s.cfg.MaxBatch {
		return Batch{}, invalidf("quantity must be between 1 and %d", s.cfg.MaxBatch)
	}
	if input.DurationMinutes <= 0 {
		return Batch{}, invalidf("duration must be positive")
	}
	if input.ValidityDays <= 0 {
		return Batch{}, invalidf("validity must be positive")
	}

	now := s.now()
	batch := Batch{
		ID:        ids.New(),
		ExpiresAt: now.AddDate(0, 0, input.ValidityDays),
	}

	err := s.store.InTx(ctx, func(repos repository.Set) error {
		vouchers := make([]models.Voucher, 0, input.Quantity)
		seen := make(map[string]struct{}, input.Quantity)
		for len(vouchers) < input.Quantity {
			voucher, err := s.insertUnique(ctx, repos, seen, batch, input.DurationMinutes, now)
			if err != nil {
				return err
			}
			vouchers = append(vouchers, voucher)
		}
		batch.Vouchers = vouchers
		return nil
	})
	if errors.Is(err, ErrCodeExhausted) {
		return Batch{}, err
	}
	if err != nil {
		return Batch{}, unavailable(err)
	}

	s.metrics.Generated(len(batch.Vouchers))
	s.log.Info().
		Str("batch_id", batch.ID).
		Int("quantity", len(batch.Vouchers)).
		Int("duration_minutes", input.DurationMinutes).
		Time("expires_at", batch.ExpiresAt).
		Msg("voucher batch generated")
	return batch, nil
}

func (s *AccessService) insertUnique(ctx context.Context, repos repository.Set, seen map[string]struct{}, batch Batch, minutes int, now time.Time) (models.Voucher, error) {
	batchID := batch.ID
	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return models.Voucher{}, fmt.Errorf("generate voucher code: %w", err)
		}
		code = vouchercode.Normalize(code)
		if _, dup := seen[code]; dup {
			continue
		}

		voucher := models.Voucher{
			ID:              ids.New(),
			Code:            code,
			BatchID:         &batchID,
			DurationMinutes: minutes,
			ExpiresAt:       batch.ExpiresAt,
			CreatedAt:       now,
		}
		inserted, err := repos.Vouchers.Insert(ctx, voucher)
		if err != nil {
			return models.Voucher{}, err
		}
		if !inserted {
			s.log.Debug().Str("batch_id", batchID).Int("attempt", attempt+1).Msg("voucher code collision")
			continue
		}
		seen[code] = struct{}{}
		return voucher, nil
	}
	return models.Voucher{}, fmt.Errorf("%w after %d attempts", ErrCodeExhausted, s.cfg.CodeAttempts)
}

type SessionStatus struct {
	Session   models.Session
	Active    bool
	Remaining time.Duration
	Countdown string
}

// GetSession reports liveness from the expiry time, so a session the sweep
// has not reached yet still reads as expired.
func (s *AccessService) GetSession(ctx context.Context, id string) (SessionStatus, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return SessionStatus{}, err
	}
	now := s.now()
	remaining := session.Remaining(now)
	return SessionStatus{
		Session:   session,
		Active:    session.ActiveAt(now),
		Remaining: remaining,
		Countdown: countdown.Format(remaining),
	}, nil
}

// WatchSession streams countdown ticks for a session until it expires or ctx
// is cancelled.
func (s *AccessService) WatchSession(ctx context.Context, id string, emit func(countdown.Tick) error) error {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return err
	}
	expiry := session.ExpiryTime
	if !session.IsActive {
		expiry = session.StartTime
	}
	return countdown.Run(ctx, expiry, s.cfg.CountdownPeriod, s.now, emit)
}

func (s *AccessService) loadSession(ctx context.Context, id string) (models.Session, error) {
	if strings.TrimSpace(id) == "" {
		return models.Session{}, invalidf("session id required")
	}
	var session models.Session
	err := withReadRetry(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.store.Repos().Sessions.GetByID(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrSessionNotFound) {
		return models.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Session{}, unavailable(err)
	}
	return session, nil
}

// idempotent runs op at most once per (caller, scope, key). A retry with the
// same input after success is answered from the store through replay; a key
// reused for different input is rejected. An empty key disables the check.
func idempotent[T any](
	ctx context.Context,
	s *AccessService,
	actor Actor,
	scope, key, fp string,
	op func() (T, string, error),
	replay func(ctx context.Context, ref string) (T, error),
) (T, error) {
	var zero T
	key = strings.TrimSpace(key)
	if key == "" || s.dedup == nil {
		result, _, err := op()
		return result, err
	}
	if len(key) > maxIdempotencyKey {
		return zero, invalidf("idempotency key longer than %d characters", maxIdempotencyKey)
	}
	key = idempotencyOwner(actor) + ":" + key

	res, err := s.dedup.Reserve(ctx, scope, key, fp)
	if err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("idempotency reserve failed, continuing without it")
		result, _, err := op()
		return result, err
	}
	if res.State != idempotency.Reserved && res.Fingerprint != fp {
		return zero, ErrIdempotencyKeyReused
	}

	switch res.State {
	case idempotency.Pending:
		return zero, ErrRequestInFlight
	case idempotency.Done:
		result, err := replay(ctx, res.Value)
		if err != nil {
			return zero, unavailable(err)
		}
		s.log.Debug().Str("scope", scope).Str("ref", res.Value).Msg("idempotent replay")
		return result, nil
	}

	result, ref, err := op()
	if err != nil {
		if abortErr := s.dedup.Abort(ctx, scope, key); abortErr != nil {
			s.log.Warn().Err(abortErr).Str("scope", scope).Msg("idempotency abort failed")
		}
		return zero, err
	}
	if err := s.dedup.Commit(ctx, scope, key, fp, ref); err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("idempotency commit failed")
	}
	return result, nil
}

// idempotencyOwner namespaces keys per caller. Guests share one namespace and
// are kept apart by the input fingerprint.
func idempotencyOwner(actor Actor) string {
	if actor.UserID == nil {
		return "guest"
	}
	return "user-" + *actor.UserID
}

// fingerprint hashes the normalized request fields.
func fingerprint(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(sum[:])
}
