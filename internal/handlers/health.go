package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

// Health reports 503 when the store is unreachable. Redis is optional, so a
// failing cache only degrades the status.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    "ok",
		Cache:       "disabled",
		Environment: h.cfg.Environment,
	}
	code := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		resp.Status, resp.Database = "error", "error"
		code = http.StatusServiceUnavailable
		h.log.Error().Err(err).Msg("database ping failed")
	}

	if h.cache != nil {
		resp.Cache = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			resp.Cache = "error"
			if code == http.StatusOK {
				resp.Status = "degraded"
			}
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	}

	c.JSON(code, resp)
}
