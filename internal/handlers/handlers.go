package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wifiportal/internal/config"
	"wifiportal/internal/middleware"
	"wifiportal/internal/models"
	"wifiportal/internal/repository"
	"wifiportal/internal/service"
)

// Services are the application services the HTTP layer calls into.
type Services struct {
	Auth      *service.AuthService
	Access    *service.AccessService
	Hotspots  *service.HotspotService
	Vouchers  *service.VoucherService
	Dashboard *service.DashboardService
	Exports   *service.ExportService
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	store     repository.Store
	cache     *redis.Client
	limiter   *middleware.RateLimiter
	auth      *service.AuthService
	access    *service.AccessService
	hotspots  *service.HotspotService
	vouchers  *service.VoucherService
	dashboard *service.DashboardService
	exports   *service.ExportService
}

// NewHandlerSet accepts a nil cache when Redis is disabled.
func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, store repository.Store, cache *redis.Client, svc Services) HandlerSet {
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		store:     store,
		cache:     cache,
		limiter:   middleware.NewRateLimiter(cfg.Access.RedeemRate, cfg.Access.RedeemBurst, 0),
		auth:      svc.Auth,
		access:    svc.Access,
		hotspots:  svc.Hotspots,
		vouchers:  svc.Vouchers,
		dashboard: svc.Dashboard,
		exports:   svc.Exports,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	requireAuth := middleware.Auth(h.auth)
	optionalAuth := middleware.OptionalAuth(h.auth)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.SignUp)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)

		protected := v1.Group("/auth")
		protected.Use(requireAuth)
		protected.GET("/me", h.Me)
		protected.POST("/logout", h.Logout)

		v1.GET("/packages", h.ListPackages)
		v1.GET("/hotspots", optionalAuth, h.ListHotspots)

		v1.POST("/purchases", optionalAuth, h.Purchase)
		v1.POST("/vouchers/redeem", middleware.RateLimit(h.limiter), optionalAuth, h.Redeem)

		v1.GET("/sessions/:id", h.GetSession)
		v1.GET("/sessions/:id/countdown", h.StreamCountdown)

		v1.GET("/dashboard", requireAuth, h.Dashboard)
	}

	admin := v1.Group("/admin")
	admin.Use(
		requireAuth,
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.GET("/hotspots", h.AdminListHotspots)
	admin.POST("/hotspots", h.AdminCreateHotspot)
	admin.PUT("/hotspots/:id", h.AdminUpdateHotspot)
	admin.PATCH("/hotspots/:id/status", h.AdminSetHotspotStatus)
	admin.DELETE("/hotspots/:id", h.AdminDeleteHotspot)

	admin.GET("/vouchers", h.AdminListVouchers)
	admin.POST("/vouchers/batches", h.AdminGenerateBatch)
	admin.POST("/vouchers/batches/:batchId/export", h.AdminRequestExport)
	admin.GET("/vouchers/batches/:batchId/export", h.AdminDownloadExport)
	admin.GET("/vouchers/:code/qr", h.AdminVoucherQR)

	admin.POST("/sessions/expire", h.AdminExpireSessions)
}
