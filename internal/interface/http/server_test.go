package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/command"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/query"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/memory"
	"github.com/ZapTalk/zaptalk.github.io/internal/interface/http/handlers"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type stubProvider struct {
	result payment.Result
	err    error
}

func (p *stubProvider) Name() string { return "nostr-zap" }

func (p *stubProvider) Pay(context.Context, payment.Request) (payment.Result, error) {
	return p.result, p.err
}

type testEnv struct {
	server   *Server
	store    *memory.Store
	provider *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, configure func(*Config)) *testEnv {
	t.Helper()

	store := memory.New()
	accounts, err := account.NewRegistry(account.Config{
		Catalog:         catalog.Default(),
		ProgressRepo:    document.NewProgressionRepository(store),
		EntitlementRepo: document.NewEntitlementRepository(store),
		Calendar:        timeutil.NewCalendar(timeutil.NewFixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)), time.UTC),
		Logger:          logger.Nop(),
	})
	require.NoError(t, err)

	provider := &stubProvider{result: payment.Result{OK: true, ReceiptID: "evt-1"}}
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("storage", handlers.NewStorageCheck(store))

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AdminAPIKeys = []string{testAdminKey}
	if configure != nil {
		configure(&cfg)
	}

	srv, err := NewServer(cfg, Dependencies{
		Accounts:      accounts,
		Purchases:     command.NewPurchaseHandler(accounts, provider, nil, logger.Nop()),
		Roadmap:       query.NewGetRoadmapHandler(accounts),
		LevelProgress: query.NewGetLevelProgressHandler(accounts),
		WeeklyPlan:    query.NewGetWeeklyPlanHandler(accounts),
		Dashboard:     query.NewGetDashboardHandler(accounts),
		Logger:        logger.Nop(),
		HealthChecker: health,
	})
	require.NoError(t, err)
	return &testEnv{server: srv, store: store, provider: provider}
}

const testAdminKey = "admin-secret"

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	return e.doWithHeaders(t, method, path, body, nil)
}

func (e *testEnv) doWithHeaders(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts registry is required")
	assert.Contains(t, err.Error(), "purchase handler is required")
}

func TestServer_HealthAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.RequestID)

	require.NoError(t, env.store.Close())
	code, body = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	status := decodeData[handlers.HealthStatus](t, body)
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["storage"].Healthy)
}

func TestServer_Catalog(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, code)
	cat := decodeData[CatalogResponse](t, body)
	assert.Len(t, cat.Lessons, 3)
	assert.NotEmpty(t, cat.Modules)
	assert.NotEmpty(t, cat.SKUs)

	code, _ = env.do(t, http.MethodGet, "/api/v1/catalog/skus/sku-lesson-nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_SessionFlow(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/users/learner-1"

	code, _ := env.do(t, http.MethodPut, base+"/daily-goal", DailyGoalRequest{LessonsTarget: 1})
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, base+"/sessions", StartSessionRequest{LessonID: "A1-L01"})
	require.Equal(t, http.StatusCreated, code)

	score := 100
	code, body := env.do(t, http.MethodPost, base+"/sessions/end", EndSessionRequest{Completed: true, QuizScore: &score})
	require.Equal(t, http.StatusOK, code)

	ended := decodeData[EndSessionResponse](t, body)
	require.NotNil(t, ended.Session)
	assert.True(t, ended.Session.Completed)
	// 50 lesson + 25 perfect + 20 speed + 30 daily goal, plus achievement rewards.
	assert.GreaterOrEqual(t, ended.Progression.XP, 125)
	assert.Equal(t, 1, ended.Progression.Streak.Current)
	require.NotNil(t, ended.Progression.TodayGoal)
	assert.True(t, ended.Progression.TodayGoal.Achieved)
	assert.NotEmpty(t, ended.Progression.Achievements)

	// Nothing active any more.
	code, body = env.do(t, http.MethodPost, base+"/sessions/end", EndSessionRequest{Completed: true})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, decodeData[EndSessionResponse](t, body).Session)
}

func TestServer_AddXPAndReset(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/users/learner-1"

	code, body := env.do(t, http.MethodPost, base+"/xp", AddXPRequest{Amount: 40, Reason: "Bonus"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 40, decodeData[ProgressionResponse](t, body).XP)

	code, _ = env.do(t, http.MethodPost, base+"/xp", AddXPRequest{Amount: 40})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodDelete, base+"/progression", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decodeData[ProgressionResponse](t, body).XP)
}

func TestServer_EntitlementsAndAccess(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/users/learner-1"
	sku := catalog.SKUID(catalog.SkuModule, "A1-M01")
	admin := map[string]string{AdminAPIKeyHeader: testAdminKey}

	code, body := env.do(t, http.MethodGet, base+"/lessons/A1-L02/access", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[AccessResponse](t, body).HasAccess)

	code, body = env.do(t, http.MethodPost, base+"/entitlements", GrantRequest{SkuID: sku, Source: "webln-invoice", ReceiptID: "inv-1"})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing_api_key", body.Error.Code)

	code, body = env.doWithHeaders(t, http.MethodPost, base+"/entitlements", GrantRequest{SkuID: sku, Source: "webln-invoice", ReceiptID: "inv-1"},
		map[string]string{AdminAPIKeyHeader: "guess"})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_api_key", body.Error.Code)

	code, body = env.do(t, http.MethodGet, base+"/lessons/A1-L02/access", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[AccessResponse](t, body).HasAccess)

	code, body = env.doWithHeaders(t, http.MethodPost, base+"/entitlements", GrantRequest{SkuID: sku, Source: "webln-invoice", ReceiptID: "inv-1"}, admin)
	require.Equal(t, http.StatusOK, code)
	grant := decodeData[GrantResponse](t, body)
	assert.True(t, grant.Granted)
	require.NotNil(t, grant.Entitlement)
	assert.Equal(t, "inv-1", grant.Entitlement.ReceiptID)

	code, body = env.doWithHeaders(t, http.MethodPost, base+"/entitlements", GrantRequest{SkuID: sku, Source: "nostr-zap"},
		map[string]string{"Authorization": "Bearer " + testAdminKey})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[GrantResponse](t, body).Granted)

	code, body = env.do(t, http.MethodGet, base+"/lessons/A1-L02/access", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[AccessResponse](t, body).HasAccess)

	code, _ = env.doWithHeaders(t, http.MethodPost, base+"/entitlements", GrantRequest{SkuID: sku, Source: "cash"}, admin)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_GrantClosedWithoutAdminKeys(t *testing.T) {
	env := newTestEnvWith(t, func(cfg *Config) { cfg.AdminAPIKeys = nil })

	code, _ := env.doWithHeaders(t, http.MethodPost, "/api/v1/users/learner-1/entitlements",
		GrantRequest{SkuID: catalog.SKUID(catalog.SkuLevel, "A1"), Source: "nostr-zap"},
		map[string]string{AdminAPIKeyHeader: testAdminKey})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServer_LessonProgress(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/users/learner-1"

	code, _ := env.do(t, http.MethodGet, base+"/lessons/A1-L01/progress", nil)
	assert.Equal(t, http.StatusNotFound, code)

	score := 140
	code, body := env.do(t, http.MethodPut, base+"/lessons/A1-L01/progress", RecordProgressRequest{Completed: true, Score: &score})
	require.Equal(t, http.StatusOK, code)
	var p struct {
		Completed bool `json:"completed"`
		Score     *int `json:"score"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.True(t, p.Completed)
	require.NotNil(t, p.Score)
	assert.Equal(t, 100, *p.Score)
}

func TestServer_Purchase(t *testing.T) {
	sku := catalog.SKUID(catalog.SkuLesson, "A1-L02")

	t.Run("granted", func(t *testing.T) {
		env := newTestEnv(t)
		code, body := env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku, Payer: "npub1payer"})
		require.Equal(t, http.StatusCreated, code)
		res := decodeData[command.PurchaseResult](t, body)
		assert.True(t, res.Granted)
		assert.Equal(t, "evt-1", res.ReceiptID)

		code, body = env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku, Payer: "npub1payer"})
		require.Equal(t, http.StatusOK, code)
		assert.True(t, decodeData[command.PurchaseResult](t, body).AlreadyOwned)
	})

	t.Run("declined", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.result = payment.Result{OK: false, Error: "Insufficient balance"}
		code, body := env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku, Payer: "npub1payer"})
		assert.Equal(t, http.StatusPaymentRequired, code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "Insufficient balance", body.Error.Message)
	})

	t.Run("provider error", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.err = errors.New("connection reset")
		code, _ := env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku, Payer: "npub1payer"})
		assert.Equal(t, http.StatusBadGateway, code)
	})

	t.Run("login required", func(t *testing.T) {
		env := newTestEnv(t)
		code, body := env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku})
		assert.Equal(t, http.StatusUnauthorized, code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "login required", body.Error.Message)
	})

	t.Run("async", func(t *testing.T) {
		env := newTestEnv(t)
		code, _ := env.do(t, http.MethodPost, "/api/v1/users/learner-1/purchases", PurchaseRequest{SkuID: sku, Payer: "npub1payer", Async: true})
		require.Equal(t, http.StatusAccepted, code)
		env.server.deps.Purchases.Wait()

		code, body := env.do(t, http.MethodGet, "/api/v1/users/learner-1/lessons/A1-L02/access", nil)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, decodeData[AccessResponse](t, body).HasAccess)
	})
}

func TestServer_ReadModels(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/users/learner-1"

	for _, path := range []string{"/roadmap", "/level-progress", "/weekly-plan?offset=-1", "/dashboard", "/stats", "/achievements"} {
		code, body := env.do(t, http.MethodGet, base+path, nil)
		assert.Equal(t, http.StatusOK, code, path)
		assert.True(t, body.Success, path)
	}

	code, _ := env.do(t, http.MethodGet, base+"/weekly-plan?offset=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/users/bad!user/stats", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "invalid_request", body.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/learner-1/xp", bytes.NewBufferString(`{"amount":`))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.store.Close())
	code, body = env.do(t, http.MethodGet, "/api/v1/users/learner-2/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "storage_error", body.Error.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/catalog", nil)
	req.Header.Set("Origin", "https://zaptalk.github.io")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://zaptalk.github.io", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
}
