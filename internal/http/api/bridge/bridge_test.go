package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/teslabridge/quotaserver/internal/config"
	"github.com/teslabridge/quotaserver/internal/identity"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/models"
	"github.com/teslabridge/quotaserver/internal/service"
	"github.com/teslabridge/quotaserver/internal/usage"
	"gorm.io/gorm"
)

type stubVerifier struct {
	identities map[string]string
}

func (s *stubVerifier) Verify(_ context.Context, credential, claimedUserID string) error {
	issued, ok := s.identities[credential]
	if !ok || identity.NormalizeUserID(claimedUserID) != issued {
		return identity.ErrUnauthorized
	}
	return nil
}

func (s *stubVerifier) Resolve(_ context.Context, credential string) (string, error) {
	issued, ok := s.identities[credential]
	if !ok {
		return "", identity.ErrUnauthorized
	}
	return issued, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := conn.AutoMigrate(&models.QuotaAccount{}, &models.UsageEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	verifier := &stubVerifier{identities: map[string]string{
		"token-alice": "alice@example.com",
		"token-bob":   "bob@example.com",
	}}
	svc := service.NewQuota(verifier, ledger.NewGormLedger(conn), usage.NewRecorder(conn), 10)

	engine := gin.New()
	RegisterBridgeRoutes(engine, conn, svc, config.BridgeConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		PurchaseMode: "creditPack",
	})
	return engine, conn
}

func doRequest(t *testing.T, engine *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
	}
	return payload
}

func TestHealthz(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetBalanceRequiresUserOrToken(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodGet, "/api/quota", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetBalanceProvisionsNewAccount(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodGet, "/api/quota?userId=alice@example.com", "token-alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["userId"] != "alice@example.com" {
		t.Fatalf("userId = %v", payload["userId"])
	}
	if payload["balance"] != float64(10) {
		t.Fatalf("balance = %v, want 10", payload["balance"])
	}
}

func TestGetBalanceUnknownUserWithoutToken(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodGet, "/api/quota?userId=ghost@example.com", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestConsumeDecrementsBalance(t *testing.T) {
	engine, _ := newTestRouter(t)

	if rec := doRequest(t, engine, http.MethodGet, "/api/quota?userId=alice@example.com", "token-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("provision status = %d", rec.Code)
	}

	rec := doRequest(t, engine, http.MethodPost, "/api/quota/use", "token-alice", `{"userId":"alice@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["balance"] != float64(9) {
		t.Fatalf("balance = %v, want 9", payload["balance"])
	}
}

func TestConsumeRejectsMismatchedToken(t *testing.T) {
	engine, _ := newTestRouter(t)

	if rec := doRequest(t, engine, http.MethodGet, "/api/quota?userId=alice@example.com", "token-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("provision status = %d", rec.Code)
	}

	rec := doRequest(t, engine, http.MethodPost, "/api/quota/use", "token-bob", `{"userId":"alice@example.com"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLegacyConsumeValidation(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodPost, "/api/quota", "token-alice", `{"useQuota":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing userId status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodPost, "/api/quota", "token-alice", `{"userId":"alice@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing useQuota status = %d, want 400", rec.Code)
	}
}

func TestLegacyConsumeReportsExhaustionAsConflict(t *testing.T) {
	engine, conn := newTestRouter(t)

	if rec := doRequest(t, engine, http.MethodGet, "/api/quota?userId=alice@example.com", "token-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("provision status = %d", rec.Code)
	}
	if errSet := conn.Model(&models.QuotaAccount{}).Where("user_id = ?", "alice@example.com").Update("balance", 0).Error; errSet != nil {
		t.Fatalf("drain balance: %v", errSet)
	}

	rec := doRequest(t, engine, http.MethodPost, "/api/quota", "token-alice", `{"userId":"alice@example.com","useQuota":true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "Quota exhausted" {
		t.Fatalf("error = %v", payload["error"])
	}
	if payload["balance"] != float64(0) {
		t.Fatalf("balance = %v, want 0", payload["balance"])
	}
}

func TestAddCreditsFlow(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodPost, "/api/quota/add", "", `{"userId":"alice@example.com","credits":5}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	if rec = doRequest(t, engine, http.MethodGet, "/api/quota?userId=alice@example.com", "token-alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("provision status = %d", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodPost, "/api/quota/add", "token-alice", `{"userId":"alice@example.com","credits":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero credits status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodPost, "/api/quota/add", "token-bob", `{"userId":"alice@example.com","credits":5}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched token status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodPost, "/api/quota/add", "token-alice", `{"userId":"alice@example.com","credits":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["balance"] != float64(15) {
		t.Fatalf("balance = %v, want 15", payload["balance"])
	}
}

func TestSettingsFallsBackToConfig(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := doRequest(t, engine, http.MethodGet, "/api/settings", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["clientId"] != "client-id" {
		t.Fatalf("clientId = %v", payload["clientId"])
	}
	if payload["purchaseMode"] != "creditPack" {
		t.Fatalf("purchaseMode = %v", payload["purchaseMode"])
	}
}
