package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wifiportal/internal/models"
	"wifiportal/internal/repository"
)

const recentLimit = 5

type DashboardService struct {
	store repository.Store
	now   func() time.Time
}

func NewDashboardService(store repository.Store, now func() time.Time) *DashboardService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DashboardService{store: store, now: now}
}

// Dashboard is the admin overview, or the caller's own activity for users.
// The global totals are only set for admins.
type Dashboard struct {
	Global         bool
	TotalUsers     int
	Hotspots       int
	Revenue        decimal.Decimal
	ActiveSessions int
	RecentSessions []models.SessionView
	RecentOrders   []models.Order
}

func (s *DashboardService) Get(ctx context.Context, actor Actor) (Dashboard, error) {
	if actor.IsGuest() {
		return Dashboard{}, ErrUnauthorized
	}

	var scope *string
	if !actor.IsAdmin() {
		scope = actor.UserID
	}

	var d Dashboard
	err := withReadRetry(ctx, func(ctx context.Context) error {
		repos := s.store.Repos()
		d = Dashboard{Global: scope == nil}

		var err error
		if d.Global {
			if d.TotalUsers, err = repos.Profiles.Count(ctx); err != nil {
				return err
			}
			if d.Hotspots, err = repos.Hotspots.Count(ctx); err != nil {
				return err
			}
			if d.Revenue, err = repos.Orders.Revenue(ctx); err != nil {
				return err
			}
		}
		if d.ActiveSessions, err = repos.Sessions.CountActive(ctx, scope, s.now()); err != nil {
			return err
		}
		if d.RecentSessions, err = repos.Sessions.Recent(ctx, scope, recentLimit); err != nil {
			return err
		}
		d.RecentOrders, err = repos.Orders.Recent(ctx, scope, recentLimit)
		return err
	})
	if err != nil {
		return Dashboard{}, unavailable(err)
	}
	return d, nil
}
