package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wifiportal/internal/config"
	"wifiportal/internal/idempotency"
	"wifiportal/internal/repository/memory"
	"wifiportal/internal/service"
)

const adminPhone = "+255700000001"

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
}

func newTestAPI(t *testing.T, mutate ...func(*config.AppConfig)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Environment: "test",
		Database:    config.DatabaseConfig{Driver: "memory"},
		Security: config.SecurityConfig{
			JWTAccessSecret: "handler-secret",
			JWTAccessTTL:    15 * time.Minute,
			JWTRefreshTTL:   time.Hour,
			MaxSessions:     5,
		},
		Identity: config.IdentityConfig{EmailDomain: "wifi.tz", AdminPhones: []string{adminPhone}},
		Access: config.AccessConfig{
			MaxBatch:        100,
			CodeAttempts:    5,
			CountdownPeriod: 10 * time.Millisecond,
			RedeemRate:      1000,
			RedeemBurst:     1000,
		},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	store := memory.New()
	log := zerolog.Nop()
	access := service.NewAccessService(store, cfg.Access, log, service.WithDeduplicator(idempotency.NewMemory(time.Hour)))
	hs := NewHandlerSet(log, cfg, store, nil, Services{
		Auth:      service.NewAuthService(store, cfg, log),
		Access:    access,
		Hotspots:  service.NewHotspotService(store, log),
		Vouchers:  service.NewVoucherService(store, ""),
		Dashboard: service.NewDashboardService(store, nil),
		Exports:   service.NewExportService(store, nil, nil, time.Hour, log),
	})

	router := gin.New()
	hs.Register(router.Group("/api"))
	return &testAPI{t: t, router: router, store: store}
}

func (a *testAPI) do(method, path, token string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func (a *testAPI) register(phone string) string {
	a.t.Helper()
	w, body := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"phone": phone, "password": "secret1"})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("register %s: %d %s", phone, w.Code, w.Body.String())
	}
	return body["accessToken"].(string)
}

func (a *testAPI) createHotspot(token string) string {
	a.t.Helper()
	w, body := a.do(http.MethodPost, "/api/v1/admin/hotspots", token, map[string]any{"name": "Posta", "location": "Dar es Salaam"})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("create hotspot: %d %s", w.Code, w.Body.String())
	}
	return body["hotspot"].(map[string]any)["id"].(string)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w, body := api.do(http.MethodGet, "/api/healthz", "", nil)
	if w.Code != http.StatusOK || body["database"] != "ok" || body["cache"] != "disabled" {
		t.Errorf("unexpected health %d %v", w.Code, body)
	}

	api.store.Fail("ping", context.DeadlineExceeded)
	w, _ = api.do(http.MethodGet, "/api/healthz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is down, got %d", w.Code)
	}
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("+255712345678")

	w, body := api.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	if user := body["user"].(map[string]any); user["phone"] != "+255712345678" || user["role"] != "user" {
		t.Errorf("unexpected user %v", user)
	}

	w, _ = api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"phone": "+255712345678", "password": "secret1"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a taken phone, got %d", w.Code)
	}
	w, _ = api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"phone": "+255712345678", "password": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad password, got %d", w.Code)
	}

	w, _ = api.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", w.Code)
	}
	w, _ = api.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to fail, got %d", w.Code)
	}
}

func TestPurchaseFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register(adminPhone)
	hotspotID := api.createHotspot(admin)

	w, body := api.do(http.MethodGet, "/api/v1/packages", "", nil)
	if w.Code != http.StatusOK || len(body["items"].([]any)) != 3 {
		t.Fatalf("packages: %d %v", w.Code, body)
	}
	w, body = api.do(http.MethodGet, "/api/v1/hotspots", "", nil)
	if w.Code != http.StatusOK || len(body["items"].([]any)) != 1 {
		t.Fatalf("hotspots: %d %v", w.Code, body)
	}

	purchase := map[string]string{"phone": "+255712345678", "packageId": "daily", "hotspotId": hotspotID}
	w, body = api.do(http.MethodPost, "/api/v1/purchases", "", purchase, "Idempotency-Key", "tap-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("purchase: %d %s", w.Code, w.Body.String())
	}
	order := body["order"].(map[string]any)
	session := body["session"].(map[string]any)
	if order["status"] != "completed" || order["amount"] != "2000.00" {
		t.Errorf("unexpected order %v", order)
	}
	if session["isActive"] != true || session["orderId"] != order["id"] {
		t.Errorf("unexpected session %v", session)
	}

	w, replay := api.do(http.MethodPost, "/api/v1/purchases", "", purchase, "Idempotency-Key", "tap-1")
	if w.Code != http.StatusCreated || replay["order"].(map[string]any)["id"] != order["id"] {
		t.Errorf("expected idempotent replay, got %d %v", w.Code, replay)
	}

	w, body = api.do(http.MethodGet, "/api/v1/sessions/"+session["id"].(string), "", nil)
	if w.Code != http.StatusOK || body["session"].(map[string]any)["isActive"] != true {
		t.Errorf("session status: %d %v", w.Code, body)
	}

	bad := map[string]string{"phone": "+255712345678", "packageId": "monthly", "hotspotId": hotspotID}
	if w, _ = api.do(http.MethodPost, "/api/v1/purchases", "", bad); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown package, got %d", w.Code)
	}

	w, body = api.do(http.MethodGet, "/api/v1/dashboard", admin, nil)
	if w.Code != http.StatusOK || body["revenue"] != "2000.00" || body["activeSessions"] != float64(1) {
		t.Errorf("dashboard: %d %v", w.Code, body)
	}
}

func TestVoucherFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register(adminPhone)

	w, body := api.do(http.MethodPost, "/api/v1/admin/vouchers/batches", admin, map[string]int{"quantity": 3, "durationMinutes": 60, "validityDays": 30})
	if w.Code != http.StatusCreated {
		t.Fatalf("batch: %d %s", w.Code, w.Body.String())
	}
	vouchers := body["vouchers"].([]any)
	if len(vouchers) != 3 {
		t.Fatalf("expected 3 vouchers, got %d", len(vouchers))
	}
	code := vouchers[0].(map[string]any)["code"].(string)

	w, body = api.do(http.MethodPost, "/api/v1/vouchers/redeem", "", map[string]string{"code": strings.ToLower(code)})
	if w.Code != http.StatusCreated {
		t.Fatalf("redeem: %d %s", w.Code, w.Body.String())
	}
	if s := body["session"].(map[string]any); s["countdown"] != "0h 59m" && s["countdown"] != "1h 0m" {
		t.Errorf("unexpected countdown %v", s["countdown"])
	}

	w, body = api.do(http.MethodPost, "/api/v1/vouchers/redeem", "", map[string]string{"code": code})
	if w.Code != http.StatusBadRequest || body["error"] != service.ErrInvalidVoucher.Error() {
		t.Errorf("expected 400 invalid voucher, got %d %v", w.Code, body)
	}

	w, body = api.do(http.MethodGet, "/api/v1/admin/vouchers?perPage=2", admin, nil)
	if w.Code != http.StatusOK || len(body["items"].([]any)) != 2 {
		t.Errorf("voucher list: %d %v", w.Code, body)
	}

	w, _ = api.do(http.MethodGet, "/api/v1/admin/vouchers/"+code+"/qr?size=128", admin, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qr: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	batchID := body["items"].([]any)[0].(map[string]any)["batchId"].(string)
	w, _ = api.do(http.MethodPost, "/api/v1/admin/vouchers/batches/"+batchID+"/export", admin, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without object storage, got %d", w.Code)
	}

	w, body = api.do(http.MethodPost, "/api/v1/admin/sessions/expire", admin, nil)
	if w.Code != http.StatusOK || body["expired"] != float64(0) {
		t.Errorf("expire: %d %v", w.Code, body)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("+255712345678")

	if w, _ := api.do(http.MethodGet, "/api/v1/admin/hotspots", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w, _ := api.do(http.MethodGet, "/api/v1/admin/hotspots", user, nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}
	if w, _ := api.do(http.MethodGet, "/api/v1/dashboard", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for guest dashboard, got %d", w.Code)
	}
}

func TestHotspotAdminEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register(adminPhone)
	id := api.createHotspot(admin)

	w, body := api.do(http.MethodPatch, "/api/v1/admin/hotspots/"+id+"/status", admin, map[string]bool{"isActive": false})
	if w.Code != http.StatusOK || body["hotspot"].(map[string]any)["isActive"] != false {
		t.Fatalf("status: %d %v", w.Code, body)
	}
	if _, body = api.do(http.MethodGet, "/api/v1/hotspots", "", nil); len(body["items"].([]any)) != 0 {
		t.Errorf("expected inactive hotspot hidden from the portal, got %v", body)
	}

	purchase := map[string]string{"phone": "+255712345678", "packageId": "daily", "hotspotId": id}
	if w, _ = api.do(http.MethodPost, "/api/v1/purchases", "", purchase); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inactive hotspot, got %d", w.Code)
	}

	w, _ = api.do(http.MethodPut, "/api/v1/admin/hotspots/"+id, admin, map[string]any{"name": "Posta II", "location": "Arusha"})
	if w.Code != http.StatusOK {
		t.Errorf("update: %d %s", w.Code, w.Body.String())
	}
	if w, _ = api.do(http.MethodDelete, "/api/v1/admin/hotspots/"+id, admin, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if w, _ = api.do(http.MethodDelete, "/api/v1/admin/hotspots/"+id, admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestRedeemRateLimited(t *testing.T) {
	api := newTestAPI(t, func(cfg *config.AppConfig) {
		cfg.Access.RedeemRate = 0.01
		cfg.Access.RedeemBurst = 2
	})

	var last int
	for i := 0; i < 3; i++ {
		w, _ := api.do(http.MethodPost, "/api/v1/vouchers/redeem", "", map[string]string{"code": "NOPE-NOPE-NOPE"})
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected third attempt to be throttled, got %d", last)
	}
}

func TestCountdownStream(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register(adminPhone)
	id := api.createHotspot(admin)

	_, body := api.do(http.MethodPost, "/api/v1/purchases", "", map[string]string{"phone": "+255712345678", "packageId": "daily", "hotspotId": id})
	sessionID := body["session"].(map[string]any)["id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionID+"/countdown", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Errorf("expected event stream, got %q", w.Header().Get("Content-Type"))
	}
	if n := strings.Count(w.Body.String(), "event:countdown"); n < 2 {
		t.Errorf("expected several countdown events, got %d in %q", n, w.Body.String())
	}

	w, _ = api.do(http.MethodGet, "/api/v1/sessions/missing/countdown", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", w.Code)
	}
}
