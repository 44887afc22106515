package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wifiportal/internal/middleware"
	"wifiportal/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidVoucher):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrUserSuspended):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPhoneTaken), errors.Is(err, service.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrIdempotencyKeyReused):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, service.ErrExportDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Server side failures are logged and
// their detail is kept out of the response.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", middleware.RequestIDFrom(c)).Msg("request failed")
		message := http.StatusText(status)
		if errors.Is(err, service.ErrExportDisabled) {
			message = service.ErrExportDisabled.Error()
		}
		c.AbortWithStatusJSON(status, gin.H{"error": message})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
