package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wifiportal/internal/service"
)

const (
	principalKey = "principal"
	actorKey     = "actor"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token, ip, userAgent string) (service.Principal, error)
}

// Auth rejects requests without a valid access token.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		authenticate(c, auth, token)
	}
}

// OptionalAuth lets requests without a token through as guests. A token that
// is present must still be valid.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Set(actorKey, service.Guest())
			c.Next()
			return
		}
		authenticate(c, auth, token)
	}
}

func authenticate(c *gin.Context, auth Authenticator, token string) {
	principal, err := auth.Authenticate(c.Request.Context(), token, c.ClientIP(), c.GetHeader("User-Agent"))
	switch {
	case errors.Is(err, service.ErrUserSuspended):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_suspended"})
		return
	case errors.Is(err, service.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	c.Set(principalKey, principal)
	c.Set(actorKey, principal.Actor())
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// ActorFrom returns the caller set by Auth or OptionalAuth, or a guest.
func ActorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(service.Actor); ok {
			return actor
		}
	}
	return service.Guest()
}

func PrincipalFrom(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	principal, ok := v.(service.Principal)
	return principal, ok
}
