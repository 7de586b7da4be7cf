package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryCache) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

func (m *memoryCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryCache) Ping(context.Context) error {
	return nil
}

type stubCheckoutService struct {
	calls int
}

func (s *stubCheckoutService) Checkout(ctx context.Context, userID uuid.UUID) (*checkout.Result, error) {
	s.calls++
	return &checkout.Result{OrderID: uuid.New(), GatewayOrderRef: "order_x", AmountCents: 5000, Currency: "INR"}, nil
}

type stubPaymentsService struct{}

func (stubPaymentsService) Confirm(ctx context.Context, input payments.ConfirmInput, actorID *uuid.UUID) (*payments.Confirmation, error) {
	return &payments.Confirmation{Status: enums.OrderStatusPaid}, nil
}

type stubOrdersService struct {
	orders.Service
}

func (stubOrdersService) ListForUser(ctx context.Context, userID uuid.UUID, filters orders.ListFilters, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Items: []orders.OrderView{}}, nil
}

func (stubOrdersService) ListForSupplier(ctx context.Context, supplierID uuid.UUID, filters orders.ListFilters, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Items: []orders.OrderView{}}, nil
}

type stubPayoutsService struct {
	payouts.Service
}

func (stubPayoutsService) Balance(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error) {
	return &ledger.Balance{SupplierID: supplierID}, nil
}

func (stubPayoutsService) List(ctx context.Context, filters payouts.ListFilters, params pagination.Params) (*payouts.PayoutList, error) {
	return &payouts.PayoutList{Items: []payouts.PayoutView{}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Eventing: config.EventingConfig{
			RequestIdempotencyTTL: time.Hour,
			WebhookRateLimit:      2,
			WebhookRateWindow:     time.Minute,
		},
	}
}

func testServices() Services {
	return Services{
		Checkout: &stubCheckoutService{},
		Payments: stubPaymentsService{},
		Orders:   stubOrdersService{},
		Payouts:  stubPayoutsService{},
	}
}

func newTestRouter(cfg *config.Config, cache Cache, svcs Services) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, cache, svcs)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role, supplierID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:     uuid.New(),
		Role:       role,
		SupplierID: supplierID,
		JTI:        uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), nil, testServices())
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), nil, testServices())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestUserRoutesRequireUserRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, testServices())
	supplierID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleSupplier, &supplierID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for supplier got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleUser, nil))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for user got %d", resp.Code)
	}
}

func TestSupplierRoutesRequireSupplierRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, testServices())
	supplierID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/supplier/balance", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleUser, nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/supplier/balance", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleSupplier, &supplierID))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for supplier got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, testServices())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payouts", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleUser, nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/payouts", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin, nil))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestCheckoutReplaysIdempotentRequest(t *testing.T) {
	cfg := testConfig()
	svcs := testServices()
	checkoutSvc := svcs.Checkout.(*stubCheckoutService)
	router := newTestRouter(cfg, newMemoryCache(), svcs)
	token := buildToken(t, cfg, enums.RoleUser, nil)

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
		bodies = append(bodies, resp.Body.String())
	}
	if checkoutSvc.calls != 1 {
		t.Fatalf("expected one checkout, got %d", checkoutSvc.calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replayed body differs")
	}
}

func TestCheckoutRequiresIdempotencyKeyWhenCacheWired(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, newMemoryCache(), testServices())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleUser, nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestWebhookIsPublicAndRateLimited(t *testing.T) {
	router := newTestRouter(testConfig(), newMemoryCache(), testServices())
	body := `{"gatewayOrderRef":"order_1","gatewayPaymentRef":"pay_1","signature":"sig"}`

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.10:5555"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
