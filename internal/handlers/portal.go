package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wifiportal/internal/catalog"
	"wifiportal/internal/countdown"
	"wifiportal/internal/middleware"
	"wifiportal/internal/models"
	"wifiportal/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

type packageResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Minutes     int    `json:"minutes"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

func (h HandlerSet) ListPackages(c *gin.Context) {
	packages := catalog.All()
	items := make([]packageResponse, 0, len(packages))
	for _, p := range packages {
		items = append(items, packageResponse{
			ID:          p.ID,
			Name:        p.Name,
			Minutes:     p.Minutes,
			Price:       p.Price.StringFixed(2),
			Currency:    p.Currency,
			Description: p.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type hotspotResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	IPOrMAC   *string   `json:"ipOrMac,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newHotspotResponse(h models.Hotspot) hotspotResponse {
	return hotspotResponse{
		ID:        h.ID,
		Name:      h.Name,
		Location:  h.Location,
		IPOrMAC:   h.IPOrMAC,
		IsActive:  h.IsActive,
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

func hotspotItems(hotspots []models.Hotspot) []hotspotResponse {
	items := make([]hotspotResponse, 0, len(hotspots))
	for _, hs := range hotspots {
		items = append(items, newHotspotResponse(hs))
	}
	return items
}

func (h HandlerSet) ListHotspots(c *gin.Context) {
	hotspots, err := h.hotspots.List(c.Request.Context(), middleware.ActorFrom(c), false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": hotspotItems(hotspots)})
}

type orderResponse struct {
	ID            string    `json:"id"`
	UserID        *string   `json:"userId,omitempty"`
	PhoneNumber   string    `json:"phoneNumber"`
	PackageID     string    `json:"packageId"`
	PackageName   string    `json:"packageName"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	TransactionID *string   `json:"transactionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		PhoneNumber:   o.PhoneNumber,
		PackageID:     o.PackageID,
		PackageName:   o.PackageName,
		Amount:        o.Amount.StringFixed(2),
		Currency:      o.Currency,
		Status:        string(o.Status),
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
	}
}

type sessionResponse struct {
	ID               string    `json:"id"`
	UserID           *string   `json:"userId,omitempty"`
	OrderID          *string   `json:"orderId,omitempty"`
	VoucherID        *string   `json:"voucherId,omitempty"`
	HotspotID        *string   `json:"hotspotId,omitempty"`
	HotspotName      *string   `json:"hotspotName,omitempty"`
	HotspotLocation  *string   `json:"hotspotLocation,omitempty"`
	StartTime        time.Time `json:"startTime"`
	ExpiryTime       time.Time `json:"expiryTime"`
	IsActive         bool      `json:"isActive"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	Countdown        string    `json:"countdown"`
}

// newSessionResponse derives liveness from the expiry time rather than the stored flag.
func newSessionResponse(s models.Session, now time.Time) sessionResponse {
	remaining := s.Remaining(now)
	return sessionResponse{
		ID:               s.ID,
		UserID:           s.UserID,
		OrderID:          s.OrderID,
		VoucherID:        s.VoucherID,
		HotspotID:        s.HotspotID,
		StartTime:        s.StartTime,
		ExpiryTime:       s.ExpiryTime,
		IsActive:         s.ActiveAt(now),
		RemainingSeconds: int64(remaining / time.Second),
		Countdown:        countdown.Format(remaining),
	}
}

func newSessionViewResponse(v models.SessionView, now time.Time) sessionResponse {
	resp := newSessionResponse(v.Session, now)
	resp.HotspotName = v.HotspotName
	resp.HotspotLocation = v.HotspotLocation
	return resp
}

type purchaseRequest struct {
	Phone     string `json:"phone" binding:"required"`
	PackageID string `json:"packageId" binding:"required"`
	HotspotID string `json:"hotspotId" binding:"required"`
}

func (h HandlerSet) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.access.PurchaseSession(c.Request.Context(), middleware.ActorFrom(c), service.PurchaseInput{
		Phone:          req.Phone,
		PackageID:      req.PackageID,
		HotspotID:      req.HotspotID,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":   newOrderResponse(result.Order),
		"session": newSessionResponse(result.Session, h.access.Now()),
	})
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h HandlerSet) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.access.RedeemVoucher(c.Request.Context(), middleware.ActorFrom(c), service.RedeemInput{
		Code:           req.Code,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": newSessionResponse(session, h.access.Now())})
}

func (h HandlerSet) GetSession(c *gin.Context) {
	status, err := h.access.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := newSessionResponse(status.Session, h.access.Now())
	resp.IsActive = status.Active
	resp.RemainingSeconds = int64(status.Remaining / time.Second)
	resp.Countdown = status.Countdown
	c.JSON(http.StatusOK, gin.H{"session": resp})
}

type countdownEvent struct {
	RemainingSeconds int64  `json:"remainingSeconds"`
	Text             string `json:"text"`
	Expired          bool   `json:"expired"`
}

// StreamCountdown sends a server-sent "countdown" event per tick and closes
// the stream after the expired tick.
func (h HandlerSet) StreamCountdown(c *gin.Context) {
	ctx := c.Request.Context()
	started := false

	err := h.access.WatchSession(ctx, c.Param("id"), func(tick countdown.Tick) error {
		if !started {
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			started = true
		}
		c.SSEvent("countdown", countdownEvent{
			RemainingSeconds: int64(tick.Remaining / time.Second),
			Text:             tick.Text,
			Expired:          tick.Expired,
		})
		c.Writer.Flush()
		return nil
	})
	if err == nil || ctx.Err() != nil {
		return
	}
	if !started {
		h.respondError(c, err)
		return
	}
	h.log.Warn().Err(err).Str("session_id", c.Param("id")).Msg("countdown stream ended")
}

func (h HandlerSet) Dashboard(c *gin.Context) {
	d, err := h.dashboard.Get(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	now := h.access.Now()
	sessions := make([]sessionResponse, 0, len(d.RecentSessions))
	for _, v := range d.RecentSessions {
		sessions = append(sessions, newSessionViewResponse(v, now))
	}
	orders := make([]orderResponse, 0, len(d.RecentOrders))
	for _, o := range d.RecentOrders {
		orders = append(orders, newOrderResponse(o))
	}

	resp := gin.H{
		"activeSessions": d.ActiveSessions,
		"recentSessions": sessions,
		"recentOrders":   orders,
	}
	if d.Global {
		resp["totalUsers"] = d.TotalUsers
		resp["hotspots"] = d.Hotspots
		resp["revenue"] = d.Revenue.StringFixed(2)
	}
	c.JSON(http.StatusOK, resp)
}
