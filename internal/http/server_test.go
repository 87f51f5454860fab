package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/router-for-me/CreditRouter/internal/analyzer"
	"github.com/router-for-me/CreditRouter/internal/cache"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/models"
	"github.com/router-for-me/CreditRouter/internal/provider"
	"github.com/router-for-me/CreditRouter/internal/ratelimit"
	"github.com/router-for-me/CreditRouter/internal/router"
	"github.com/router-for-me/CreditRouter/internal/security"
	"github.com/router-for-me/CreditRouter/internal/usage"
	"gorm.io/gorm"
)

type stubClient struct{}

func (stubClient) Call(_ context.Context, modelID, _ string) (*provider.Response, error) {
	return &provider.Response{Text: "ok from " + modelID, InputTokens: 30, OutputTokens: 20, TokensUsed: 50}, nil
}

func testEngine(t *testing.T, adminHash string) (*gin.Engine, *ledger.Ledger) {
	t.Helper()

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := conn.AutoMigrate(&models.CreditAccount{}, &models.CreditReservation{},
		&models.LedgerTransaction{}, &models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	cat := catalog.New()
	if errReplace := cat.Replace([]catalog.ModelDescriptor{{
		ID: "std", Provider: "stub", CostPer1KMicros: 2_000_000,
		QualityScore: 0.8, CapabilityTags: []string{"general", "code"}, PriorityRank: 1,
	}}); errReplace != nil {
		t.Fatalf("catalog: %v", errReplace)
	}

	registry := provider.NewRegistry()
	registry.Register("stub", stubClient{})

	led := ledger.New(conn, 0)
	r := router.New(router.Options{
		Catalog:   cat,
		Analyzer:  analyzer.New(analyzer.Config{}),
		Limits:    ratelimit.NewRegistry(),
		Cache:     cache.NewMemory(64),
		Ledger:    led,
		Providers: registry,
		Usage:     usage.NewRecorder(conn),
	})

	engine := NewEngine(Deps{
		DB:              conn,
		Router:          r,
		Ledger:          led,
		Catalog:         cat,
		AdminAPIKeyHash: adminHash,
		ReloadCatalog:   func() error { return nil },
	})
	return engine, led
}

func postJSON(t *testing.T, engine *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		t.Fatalf("marshal body: %v", errMarshal)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRouteEndpointHappyPath(t *testing.T) {
	engine, led := testEngine(t, "")
	if _, errGrant := led.Grant(context.Background(), "acct-1", 100_000_000, models.TransactionPurchase, "test"); errGrant != nil {
		t.Fatalf("grant: %v", errGrant)
	}

	rec := postJSON(t, engine, "/v1/route", "", map[string]string{
		"account_id": "acct-1",
		"prompt":     "hello there friend",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if out["model_used"] != "std" || out["cache_hit"] != false {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestRouteEndpointInsufficientCreditsIs402(t *testing.T) {
	engine, _ := testEngine(t, "")

	rec := postJSON(t, engine, "/v1/route", "", map[string]string{
		"account_id": "poor-acct",
		"prompt":     "hello there friend",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouteEndpointRejectsMissingFields(t *testing.T) {
	engine, _ := testEngine(t, "")

	rec := postJSON(t, engine, "/v1/route", "", map[string]string{"prompt": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	engine, led := testEngine(t, "")
	if _, errGrant := led.Grant(context.Background(), "acct-1", 5_000_000, models.TransactionBonus, "welcome"); errGrant != nil {
		t.Fatalf("grant: %v", errGrant)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct-1/balance", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if out["balance_micros"].(float64) != 5_000_000 {
		t.Fatalf("unexpected balance %v", out["balance_micros"])
	}
}

func TestAdminAuth(t *testing.T) {
	key, errKey := security.GenerateAPIKey()
	if errKey != nil {
		t.Fatalf("generate key: %v", errKey)
	}
	hash, errHash := security.HashPassword(key)
	if errHash != nil {
		t.Fatalf("hash key: %v", errHash)
	}
	engine, _ := testEngine(t, hash)

	grantBody := map[string]any{"amount_micros": 1_000_000, "type": "purchase"}

	if rec := postJSON(t, engine, "/admin/accounts/acct-1/grant", "", grantBody); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if rec := postJSON(t, engine, "/admin/accounts/acct-1/grant", "wrong-key", grantBody); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", rec.Code)
	}
	if rec := postJSON(t, engine, "/admin/accounts/acct-1/grant", key, grantBody); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	engine, _ := testEngine(t, "")

	rec := postJSON(t, engine, "/admin/catalog/reload", "any", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when admin disabled, got %d", rec.Code)
	}
}
