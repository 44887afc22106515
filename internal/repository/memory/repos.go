package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wifiportal/internal/models"
	"wifiportal/internal/repository"
)

type userRepo struct{ h handle }

func (r userRepo) Create(ctx context.Context, user models.User) error {
	return r.h.do(ctx, "users.create", func(d *data) error {
		for _, existing := range d.users {
			if existing.Email == user.Email {
				return repository.ErrEmailTaken
			}
		}
		now := r.h.now()
		user.CreatedAt, user.UpdatedAt = now, now
		d.users[user.ID] = user
		return nil
	})
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (user models.User, err error) {
	err = r.h.do(ctx, "users.findbyemail", func(d *data) error {
		for _, u := range d.users {
			if u.Email == email {
				user = u
				return nil
			}
		}
		return repository.ErrUserNotFound
	})
	return user, err
}

func (r userRepo) GetByID(ctx context.Context, id string) (user models.User, err error) {
	err = r.h.do(ctx, "users.getbyid", func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		user = u
		return nil
	})
	return user, err
}

func (r userRepo) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	return r.h.do(ctx, "users.updatestatus", func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		u.Status = status
		u.UpdatedAt = r.h.now()
		d.users[id] = u
		return nil
	})
}

type profileRepo struct{ h handle }

func (r profileRepo) Create(ctx context.Context, profile models.Profile) error {
	return r.h.do(ctx, "profiles.create", func(d *data) error {
		if _, ok := d.users[profile.ID]; !ok {
			return fmt.Errorf("%w: profile without user", errConstraint)
		}
		for _, existing := range d.profiles {
			if existing.Phone == profile.Phone {
				return repository.ErrEmailTaken
			}
		}
		now := r.h.now()
		profile.CreatedAt, profile.UpdatedAt = now, now
		d.profiles[profile.ID] = profile
		return nil
	})
}

func (r profileRepo) GetByID(ctx context.Context, id string) (profile models.Profile, err error) {
	err = r.h.do(ctx, "profiles.getbyid", func(d *data) error {
		p, ok := d.profiles[id]
		if !ok {
			return repository.ErrProfileNotFound
		}
		profile = p
		return nil
	})
	return profile, err
}

func (r profileRepo) Count(ctx context.Context) (count int, err error) {
	err = r.h.do(ctx, "profiles.count", func(d *data) error {
		count = len(d.profiles)
		return nil
	})
	return count, err
}

type authSessionRepo struct{ h handle }

func (r authSessionRepo) Create(ctx context.Context, session models.AuthSession) error {
	return r.h.do(ctx, "auth_sessions.create", func(d *data) error {
		now := r.h.now()
		session.CreatedAt, session.LastSeenAt = now, now
		d.authSessions[session.ID] = session
		return nil
	})
}

func (r authSessionRepo) GetByID(ctx context.Context, id string) (session models.AuthSession, err error) {
	err = r.h.do(ctx, "auth_sessions.getbyid", func(d *data) error {
		s, ok := d.authSessions[id]
		if !ok {
			return repository.ErrAuthSessionNotFound
		}
		session = s
		return nil
	})
	return session, err
}

func (r authSessionRepo) FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (session models.AuthSession, err error) {
	err = r.h.do(ctx, "auth_sessions.findbyrefreshhash", func(d *data) error {
		for _, s := range d.authSessions {
			if s.UserID == userID && bytes.Equal(s.RefreshTokenHash, refreshHash) {
				session = s
				return nil
			}
		}
		return repository.ErrAuthSessionNotFound
	})
	return session, err
}

func (r authSessionRepo) Rotate(ctx context.Context, id string, refreshHash []byte, expiresAt time.Time) error {
	return r.h.do(ctx, "auth_sessions.rotate", func(d *data) error {
		s, ok := d.authSessions[id]
		if !ok {
			return repository.ErrAuthSessionNotFound
		}
		s.RefreshTokenHash = refreshHash
		s.ExpiresAt = expiresAt
		s.LastSeenAt = r.h.now()
		d.authSessions[id] = s
		return nil
	})
}

func (r authSessionRepo) Touch(ctx context.Context, id string, ip string, userAgent string) error {
	return r.h.do(ctx, "auth_sessions.touch", func(d *data) error {
		s, ok := d.authSessions[id]
		if !ok {
			return nil
		}
		s.LastSeenAt = r.h.now()
		if ip != "" {
			s.IPAddress = ip
		}
		if userAgent != "" {
			s.UserAgent = userAgent
		}
		d.authSessions[id] = s
		return nil
	})
}

func (r authSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.h.do(ctx, "auth_sessions.deletebyid", func(d *data) error {
		if _, ok := d.authSessions[id]; !ok {
			return repository.ErrAuthSessionNotFound
		}
		delete(d.authSessions, id)
		return nil
	})
}

func (r authSessionRepo) DeleteOldest(ctx context.Context, userID string, keepLatest int) error {
	return r.h.do(ctx, "auth_sessions.deleteoldest", func(d *data) error {
		var owned []models.AuthSession
		for _, s := range d.authSessions {
			if s.UserID == userID {
				owned = append(owned, s)
			}
		}
		sort.Slice(owned, func(i, j int) bool {
			if owned[i].LastSeenAt.Equal(owned[j].LastSeenAt) {
				return owned[i].ID > owned[j].ID
			}
			return owned[i].LastSeenAt.After(owned[j].LastSeenAt)
		})
		for i := keepLatest; i < len(owned); i++ {
			delete(d.authSessions, owned[i].ID)
		}
		return nil
	})
}

type hotspotRepo struct{ h handle }

func (r hotspotRepo) Create(ctx context.Context, hotspot models.Hotspot) error {
	return r.h.do(ctx, "hotspots.create", func(d *data) error {
		if _, ok := d.hotspots[hotspot.ID]; ok {
			return fmt.Errorf("%w: duplicate hotspot id", errConstraint)
		}
		now := r.h.now()
		hotspot.CreatedAt, hotspot.UpdatedAt = now, now
		d.hotspots[hotspot.ID] = hotspot
		return nil
	})
}

func (r hotspotRepo) Update(ctx context.Context, hotspot models.Hotspot) error {
	return r.h.do(ctx, "hotspots.update", func(d *data) error {
		existing, ok := d.hotspots[hotspot.ID]
		if !ok {
			return repository.ErrHotspotNotFound
		}
		hotspot.CreatedAt = existing.CreatedAt
		hotspot.UpdatedAt = r.h.now()
		d.hotspots[hotspot.ID] = hotspot
		return nil
	})
}

func (r hotspotRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.h.do(ctx, "hotspots.setactive", func(d *data) error {
		hotspot, ok := d.hotspots[id]
		if !ok {
			return repository.ErrHotspotNotFound
		}
		hotspot.IsActive = active
		hotspot.UpdatedAt = r.h.now()
		d.hotspots[id] = hotspot
		return nil
	})
}

func (r hotspotRepo) Delete(ctx context.Context, id string) error {
	return r.h.do(ctx, "hotspots.delete", func(d *data) error {
		if _, ok := d.hotspots[id]; !ok {
			return repository.ErrHotspotNotFound
		}
		delete(d.hotspots, id)
		for sid, s := range d.sessions {
			if s.HotspotID != nil && *s.HotspotID == id {
				s.HotspotID = nil
				d.sessions[sid] = s
			}
		}
		return nil
	})
}

func (r hotspotRepo) GetByID(ctx context.Context, id string) (hotspot models.Hotspot, err error) {
	err = r.h.do(ctx, "hotspots.getbyid", func(d *data) error {
		h, ok := d.hotspots[id]
		if !ok {
			return repository.ErrHotspotNotFound
		}
		hotspot = h
		return nil
	})
	return hotspot, err
}

func (r hotspotRepo) List(ctx context.Context, activeOnly bool) (hotspots []models.Hotspot, err error) {
	err = r.h.do(ctx, "hotspots.list", func(d *data) error {
		for _, h := range d.hotspots {
			if activeOnly && !h.IsActive {
				continue
			}
			hotspots = append(hotspots, h)
		}
		sort.Slice(hotspots, func(i, j int) bool { return hotspots[i].Name < hotspots[j].Name })
		return nil
	})
	return hotspots, err
}

func (r hotspotRepo) Count(ctx context.Context) (count int, err error) {
	err = r.h.do(ctx, "hotspots.count", func(d *data) error {
		count = len(d.hotspots)
		return nil
	})
	return count, err
}

type voucherRepo struct{ h handle }

func (r voucherRepo) Insert(ctx context.Context, voucher models.Voucher) (inserted bool, err error) {
	err = r.h.do(ctx, "vouchers.insert", func(d *data) error {
		code := upper(voucher.Code)
		if _, ok := d.codes[code]; ok {
			return nil
		}
		if _, ok := d.vouchers[voucher.ID]; ok {
			return nil
		}
		voucher.Code = code
		voucher.Used = false
		voucher.CreatedAt = r.h.now()
		d.vouchers[voucher.ID] = voucher
		d.codes[code] = voucher.ID
		inserted = true
		return nil
	})
	return inserted, err
}

func (r voucherRepo) Claim(ctx context.Context, code string, now time.Time, usedBy *string) (voucher models.Voucher, err error) {
	err = r.h.do(ctx, "vouchers.claim", func(d *data) error {
		id, ok := d.codes[upper(code)]
		if !ok {
			return repository.ErrVoucherUnavailable
		}
		v := d.vouchers[id]
		if !v.Redeemable(now) {
			return repository.ErrVoucherUnavailable
		}
		usedAt := now
		v.Used = true
		v.UsedAt = &usedAt
		v.UsedBy = usedBy
		d.vouchers[id] = v
		voucher = v
		return nil
	})
	return voucher, err
}

func (r voucherRepo) GetByCode(ctx context.Context, code string) (voucher models.Voucher, err error) {
	err = r.h.do(ctx, "vouchers.getbycode", func(d *data) error {
		id, ok := d.codes[upper(code)]
		if !ok {
			return repository.ErrVoucherNotFound
		}
		voucher = d.vouchers[id]
		return nil
	})
	return voucher, err
}

func (r voucherRepo) List(ctx context.Context, page repository.Page) (vouchers []models.Voucher, err error) {
	err = r.h.do(ctx, "vouchers.list", func(d *data) error {
		all := make([]models.Voucher, 0, len(d.vouchers))
		for _, v := range d.vouchers {
			all = append(all, v)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].ID > all[j].ID
			}
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		vouchers = window(all, page)
		return nil
	})
	return vouchers, err
}

func (r voucherRepo) ListByBatch(ctx context.Context, batchID string) (vouchers []models.Voucher, err error) {
	err = r.h.do(ctx, "vouchers.listbybatch", func(d *data) error {
		for _, v := range d.vouchers {
			if v.BatchID != nil && *v.BatchID == batchID {
				vouchers = append(vouchers, v)
			}
		}
		sort.Slice(vouchers, func(i, j int) bool { return vouchers[i].Code < vouchers[j].Code })
		return nil
	})
	return vouchers, err
}

func window[T any](items []T, page repository.Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

type orderRepo struct{ h handle }

func (r orderRepo) Create(ctx context.Context, order models.Order) error {
	return r.h.do(ctx, "orders.create", func(d *data) error {
		if _, ok := d.orders[order.ID]; ok {
			return fmt.Errorf("%w: duplicate order id", errConstraint)
		}
		order.UpdatedAt = order.CreatedAt
		d.orders[order.ID] = order
		return nil
	})
}

func (r orderRepo) GetByID(ctx context.Context, id string) (order models.Order, err error) {
	err = r.h.do(ctx, "orders.getbyid", func(d *data) error {
		o, ok := d.orders[id]
		if !ok {
			return repository.ErrOrderNotFound
		}
		order = o
		return nil
	})
	return order, err
}

func (r orderRepo) Recent(ctx context.Context, userID *string, limit int) (orders []models.Order, err error) {
	err = r.h.do(ctx, "orders.recent", func(d *data) error {
		for _, o := range d.orders {
			if userID != nil && (o.UserID == nil || *o.UserID != *userID) {
				continue
			}
			orders = append(orders, o)
		}
		sort.Slice(orders, func(i, j int) bool {
			if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
				return orders[i].ID > orders[j].ID
			}
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		})
		orders = window(orders, repository.Page{Limit: limit})
		return nil
	})
	return orders, err
}

func (r orderRepo) Revenue(ctx context.Context) (total decimal.Decimal, err error) {
	err = r.h.do(ctx, "orders.revenue", func(d *data) error {
		for _, o := range d.orders {
			if o.Status == models.OrderStatusCompleted {
				total = total.Add(o.Amount)
			}
		}
		return nil
	})
	return total, err
}

type sessionRepo struct{ h handle }

func (r sessionRepo) Create(ctx context.Context, session models.Session) error {
	return r.h.do(ctx, "sessions.create", func(d *data) error {
		if (session.OrderID == nil) == (session.VoucherID == nil) {
			return fmt.Errorf("%w: session needs exactly one of order or voucher", errConstraint)
		}
		if !session.ExpiryTime.After(session.StartTime) {
			return fmt.Errorf("%w: expiry must follow start", errConstraint)
		}
		if _, ok := d.sessions[session.ID]; ok {
			return fmt.Errorf("%w: duplicate session id", errConstraint)
		}
		if session.VoucherID != nil {
			for _, s := range d.sessions {
				if s.VoucherID != nil && *s.VoucherID == *session.VoucherID {
					return fmt.Errorf("%w: voucher already has a session", errConstraint)
				}
			}
		}
		session.CreatedAt = session.StartTime
		d.sessions[session.ID] = session
		return nil
	})
}

func (r sessionRepo) GetByID(ctx context.Context, id string) (session models.Session, err error) {
	err = r.h.do(ctx, "sessions.getbyid", func(d *data) error {
		s, ok := d.sessions[id]
		if !ok {
			return repository.ErrSessionNotFound
		}
		session = s
		return nil
	})
	return session, err
}

func (r sessionRepo) ExpireDue(ctx context.Context, now time.Time) (count int64, err error) {
	err = r.h.do(ctx, "sessions.expiredue", func(d *data) error {
		for id, s := range d.sessions {
			if s.IsActive && !s.ExpiryTime.After(now) {
				s.IsActive = false
				d.sessions[id] = s
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r sessionRepo) CountActive(ctx context.Context, userID *string, now time.Time) (count int, err error) {
	err = r.h.do(ctx, "sessions.countactive", func(d *data) error {
		for _, s := range d.sessions {
			if userID != nil && (s.UserID == nil || *s.UserID != *userID) {
				continue
			}
			if s.ActiveAt(now) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r sessionRepo) Recent(ctx context.Context, userID *string, limit int) (views []models.SessionView, err error) {
	err = r.h.do(ctx, "sessions.recent", func(d *data) error {
		for _, s := range d.sessions {
			if userID != nil && (s.UserID == nil || *s.UserID != *userID) {
				continue
			}
			view := models.SessionView{Session: s}
			if s.HotspotID != nil {
				if h, ok := d.hotspots[*s.HotspotID]; ok {
					name, location := h.Name, h.Location
					view.HotspotName, view.HotspotLocation = &name, &location
				}
			}
			views = append(views, view)
		}
		sort.Slice(views, func(i, j int) bool {
			if views[i].CreatedAt.Equal(views[j].CreatedAt) {
				return views[i].ID > views[j].ID
			}
			return views[i].CreatedAt.After(views[j].CreatedAt)
		})
		views = window(views, repository.Page{Limit: limit})
		return nil
	})
	return views, err
}

type exportRepo struct{ h handle }

func (r exportRepo) Upsert(ctx context.Context, export models.VoucherExport) error {
	return r.h.do(ctx, "exports.upsert", func(d *data) error {
		export.CreatedAt = r.h.now()
		d.exports[export.BatchID] = export
		return nil
	})
}

func (r exportRepo) Get(ctx context.Context, batchID string) (export models.VoucherExport, err error) {
	err = r.h.do(ctx, "exports.get", func(d *data) error {
		e, ok := d.exports[batchID]
		if !ok {
			return repository.ErrExportNotFound
		}
		export = e
		return nil
	})
	return export, err
}
