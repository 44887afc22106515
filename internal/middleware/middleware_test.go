package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wifiportal/internal/models"
	"wifiportal/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	principal service.Principal
	err       error
}

func (s stubAuth) Authenticate(context.Context, string, string, string) (service.Principal, error) {
	return s.principal, s.err
}

func adminPrincipal() service.Principal {
	return service.Principal{
		User:    models.User{ID: "u1", Status: models.UserStatusActive},
		Profile: models.Profile{ID: "u1", Role: models.UserRoleAdmin},
	}
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(stubAuth{principal: adminPrincipal()}), func(c *gin.Context) {
		actor := ActorFrom(c)
		c.String(http.StatusOK, *actor.UserID)
	})
	r.GET("/bad", Auth(stubAuth{err: service.ErrInvalidCredentials}), func(c *gin.Context) {})
	r.GET("/suspended", Auth(stubAuth{err: service.ErrUserSuspended}), func(c *gin.Context) {})

	if w := serve(r, http.MethodGet, "/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/me", bearer("t")); w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Errorf("expected 200 u1, got %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/bad", bearer("t")); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/suspended", bearer("t")); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for suspended user, got %d", w.Code)
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalAuth(stubAuth{err: service.ErrInvalidCredentials}), func(c *gin.Context) {
		if ActorFrom(c).IsGuest() {
			c.String(http.StatusOK, "guest")
			return
		}
		c.String(http.StatusOK, "user")
	})

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusOK || w.Body.String() != "guest" {
		t.Errorf("expected guest, got %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/", bearer("expired")); w.Code != http.StatusUnauthorized {
		t.Errorf("expected a bad token to be rejected, got %d", w.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	user := adminPrincipal()
	user.Profile.Role = models.UserRoleUser

	r := gin.New()
	r.GET("/admin", Auth(stubAuth{principal: adminPrincipal()}), RequireRoles(models.UserRoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/user", Auth(stubAuth{principal: user}), RequireRoles(models.UserRoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/anon", RequireRoles(models.UserRoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/admin", bearer("t")); w.Code != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/user", bearer("t")); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for user, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/anon", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without principal, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(1, 2, time.Minute)
	r := gin.New()
	r.POST("/redeem", RateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(r, http.MethodPost, "/redeem", nil).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected burst of 2 then 429, got %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/redeem", nil)
	other.RemoteAddr = "192.0.2.10:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Errorf("expected a different client to have its own bucket, got %d", w.Code)
	}
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 1024; i++ {
		l.Limiter(string(rune('a' + i%26)) + time.Duration(i).String())
	}
	now = now.Add(2 * time.Minute)
	l.Limiter("fresh")
	if len(l.limiters) != 1 {
		t.Errorf("expected idle buckets to be dropped, got %d", len(l.limiters))
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://portal.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/", http.Header{"Origin": []string{"https://portal.example"}})
	if w.Header().Get("Access-Control-Allow-Origin") != "https://portal.example" {
		t.Errorf("expected allowed origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	w = serve(r, http.MethodGet, "/", http.Header{"Origin": []string{"https://evil.example"}})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected unknown origin to be refused")
	}
	w = serve(r, http.MethodOptions, "/", http.Header{"Origin": []string{"https://portal.example"}})
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", w.Code)
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop(), nil), Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := serve(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	w = serve(r, http.MethodGet, "/id", http.Header{requestIDHeader: []string{"abc-123"}})
	if w.Body.String() != "abc-123" {
		t.Errorf("expected caller request id, got %q", w.Body.String())
	}
}
