package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/payment-bridge/internal/api"
	"github.com/ayo6706/payment-bridge/internal/api/handler"
	"github.com/ayo6706/payment-bridge/internal/config"
	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/events"
	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/ayo6706/payment-bridge/internal/idgen"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"github.com/ayo6706/payment-bridge/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "payment-bridge-test"
	testJWTAudience = "payment-bridge-api-test"
	testHMACKey     = "webhook-secret"
)

type stubGateway struct {
	mu     sync.Mutex
	result gateway.Result
	// during runs inside the call, before the result is returned.
	during func(req gateway.Request)
}

func (g *stubGateway) CreatePayout(ctx context.Context, req gateway.Request) gateway.Result {
	g.mu.Lock()
	res, during := g.result, g.during
	g.mu.Unlock()
	if during != nil {
		during(req)
	}
	return res
}

func (g *stubGateway) CreatePayin(ctx context.Context, req gateway.Request) gateway.Result {
	return g.CreatePayout(ctx, req)
}

func (g *stubGateway) set(res gateway.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result = res
}

func ack(tid string) gateway.Result {
	body := `{"status":"true","msg":"Payout initiated","order_details":{"tid":"` + tid + `"}}`
	return gateway.Result{Acknowledged: true, ExternalID: tid, Payload: json.RawMessage(body)}
}

type testAPI struct {
	handler http.Handler
	repo    *repository.MemoryRepository
	gateway *stubGateway
}

type option func(*config.Config)

func withAuth(cfg *config.Config) {
	cfg.JWTSecret = testJWTSecret
}

func withWebhookKey(cfg *config.Config) {
	cfg.WebhookHMACKey = testHMACKey
}

func withImmutableTerminals(cfg *config.Config) {
	cfg.TerminalPolicy = string(service.TerminalImmutable)
}

func setupAPI(t *testing.T, opts ...option) *testAPI {
	t.Helper()
	cfg := &config.Config{
		HTTPPort:            "0",
		JWTIssuer:           testJWTIssuer,
		JWTAudience:         testJWTAudience,
		TerminalPolicy:      string(service.TerminalOverwrite),
		PublicRateLimitRPS:  1000,
		WebhookRateLimitRPS: 1000,
		IdempotencyTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return newTestAPI(t, cfg, &stubGateway{result: ack("T1")})
}

func newTestAPI(t *testing.T, cfg *config.Config, gw *stubGateway) *testAPI {
	t.Helper()
	policy, err := service.ParseTerminalPolicy(cfg.TerminalPolicy)
	require.NoError(t, err)

	repo := repository.NewMemoryRepository(zap.NewNop())
	txSvc := service.NewTransactionService(repo, gw, idgen.New(), events.NoopPublisher{}, zap.NewNop(), service.WithTerminalPolicy(policy))
	webhookSvc := service.NewWebhookService(repo, events.NoopPublisher{}, policy, cfg.WebhookHMACKey, zap.NewNop())
	health := handler.NewHealthHandler().WithNote("storage", func() string { return "ok" })

	router := api.NewRouter(cfg, zap.NewNop(), txSvc, webhookSvc, nil, health)
	return &testAPI{handler: router.Routes(), repo: repo, gateway: gw}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func payoutBody() map[string]any {
	return map[string]any{"amount": 500, "beneficiary_name": "A", "account_number": "123", "ifsc_code": "X0001"}
}

func (a *testAPI) stored(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := a.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func TestPayoutLifecycleCompletesViaWebhook(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, true, created["success"])
	assert.Equal(t, "processing", created["status"])
	assert.Equal(t, "T1", created["gateway_order_id"])
	id := created["transaction_id"].(string)
	assert.True(t, strings.HasPrefix(id, "PAYOUT_"))

	w = a.do(t, http.MethodPost, "/webhook/payout", `{"order_details":{"tid":"T1","status":"success","bank_utr":"U1"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "success", "message": "Payout updated"}, decode(t, w))

	w = a.do(t, http.MethodGet, "/api/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, "U1", got["utr"])
	assert.Equal(t, "T1", got["gateway_order_id"])
	assert.Equal(t, float64(500), got["amount"])
	assert.Equal(t, "payraizen", got["gateway_name"])
}

func TestPayinZeroAmountRejected(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/api/payin/create", map[string]any{"amount": 0, "name": "A", "email": "a@example.com", "mobile": "1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "amount")

	all, err := a.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRejectsSubUnitAmounts(t *testing.T) {
	a := setupAPI(t)

	body := payoutBody()
	body["amount"] = "10.005"
	w := a.do(t, http.MethodPost, "/api/payout/create", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount must have at most two decimal places", decode(t, w)["message"])

	all, err := a.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLateAcknowledgementOfFailedPayout(t *testing.T) {
	a := setupAPI(t)
	a.gateway.during = func(req gateway.Request) {
		_, err := a.repo.Update(context.Background(), req.TransactionID, func(rec *models.Transaction) error {
			rec.Status = domain.StatusFailed
			return nil
		})
		require.NoError(t, err)
	}

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "T1", body["gateway_order_id"])
	assert.Equal(t, "Payout was marked failed before the gateway acknowledged it", body["message"])
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	a := setupAPI(t)
	for _, body := range []string{``, `{"amount":`, `{"amount":"abc"}`} {
		w := a.do(t, http.MethodPost, "/api/payout/create", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, false, decode(t, w)["success"])
	}
}

func TestPayoutGatewayTimeoutRecordsFailure(t *testing.T) {
	a := setupAPI(t)
	a.gateway.set(gateway.TransportFailure(context.DeadlineExceeded))

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to connect to payout gateway", body["message"])
	assert.Equal(t, "gateway request timed out", body["error"])

	stored := a.stored(t, body["transaction_id"].(string))
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestPayoutBusinessRejection(t *testing.T) {
	a := setupAPI(t)
	raw := json.RawMessage(`{"status":"false","msg":"Invalid IFSC"}`)
	a.gateway.set(gateway.Result{Payload: raw, Error: raw, Message: "Invalid IFSC"})

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Invalid IFSC", body["message"])
	assert.Equal(t, map[string]any{"status": "false", "msg": "Invalid IFSC"}, body["gateway_error"])

	stored := a.stored(t, body["transaction_id"].(string))
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.JSONEq(t, string(raw), string(stored.GatewayResponse))
}

func TestConflictingWebhooksLastRecognizedStatusWins(t *testing.T) {
	a := setupAPI(t)
	id := decode(t, a.do(t, http.MethodPost, "/api/payout/create", payoutBody()))["transaction_id"].(string)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/webhook/payout", `{"order_details":{"tid":"T1","status":"failed"}}`).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/webhook/payout", `{"order_details":{"tid":"T1","status":"success","utr":"U2"}}`).Code)

	stored := a.stored(t, id)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "U2", stored.SettlementReference)
}

func TestConflictingWebhooksUnderImmutablePolicy(t *testing.T) {
	a := setupAPI(t, withImmutableTerminals)
	id := decode(t, a.do(t, http.MethodPost, "/api/payout/create", payoutBody()))["transaction_id"].(string)

	a.do(t, http.MethodPost, "/webhook/payout", `{"order_details":{"tid":"T1","status":"failed"}}`)
	w := a.do(t, http.MethodPost, "/webhook/payout", `{"order_details":{"tid":"T1","status":"success"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, domain.StatusFailed, a.stored(t, id).Status)
}

func TestWebhookResponses(t *testing.T) {
	a := setupAPI(t)
	a.do(t, http.MethodPost, "/api/payout/create", payoutBody())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		want   map[string]any
	}{
		{"missing tid", "/webhook/payout", `{"order_details":{"status":"success"}}`, http.StatusBadRequest, map[string]any{"status": "error", "message": "Invalid payload"}},
		{"not json", "/webhook/payout", `<xml/>`, http.StatusBadRequest, map[string]any{"status": "error", "message": "Invalid payload"}},
		{"unknown tid", "/webhook/payout", `{"tid":"T999","status":"success"}`, http.StatusOK, map[string]any{"status": "accepted", "message": "Payout not found but webhook received"}},
		{"nested shape via alias", "/webhook/payraizen", `{"payload":{"order_details":{"tid":"T1","status":"success"}}}`, http.StatusOK, map[string]any{"status": "success", "message": "Payout updated"}},
		{"payin", "/webhook/payin", `{"anything":true}`, http.StatusOK, map[string]any{"status": "success", "message": "Payin webhook received"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.want, decode(t, w))
		})
	}
}

func TestWebhookSignature(t *testing.T) {
	a := setupAPI(t, withWebhookKey)
	a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	payload := []byte(`{"order_details":{"tid":"T1","status":"success","bank_utr":"U1"}}`)

	w := a.do(t, http.MethodPost, "/webhook/payout", string(payload))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/webhook/payout", string(payload), "X-Webhook-Signature", computeHMAC(payload, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/webhook/payout", string(payload), "X-Webhook-Signature", computeHMAC(payload, testHMACKey))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
}

func TestMerchantRoutesRequireTokenWhenConfigured(t *testing.T) {
	a := setupAPI(t, withAuth)

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = a.do(t, http.MethodPost, "/api/payout/create", payoutBody(), "Authorization", "Bearer "+generateTestToken(t, "merchant-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Webhooks are authenticated by signature, not by merchant tokens.
	w = a.do(t, http.MethodPost, "/webhook/payout", `{"tid":"T1","status":"success"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAndGetTransactions(t *testing.T) {
	a := setupAPI(t)
	payout := decode(t, a.do(t, http.MethodPost, "/api/payout/create", payoutBody()))["transaction_id"].(string)
	a.gateway.set(ack("P1"))
	w := a.do(t, http.MethodPost, "/api/payin/create", map[string]any{"amount": "250.50", "name": "B", "email": "b@example.com", "mobile": "9"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payin := decode(t, w)
	assert.NotNil(t, payin["gateway_data"])

	var list []map[string]any
	w = a.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = a.do(t, http.MethodGet, "/api/transactions?kind=payin", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, payin["transaction_id"], list[0]["txn_id"])

	w = a.do(t, http.MethodGet, "/api/payouts", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, payout, list[0]["txn_id"])

	w = a.do(t, http.MethodGet, "/api/transactions?status=completed", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/transactions?kind=refund", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/transactions?status=done", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/transactions/PAYOUT_NOPE", nil).Code)
}

func TestPayoutAgainstPartnerServer(t *testing.T) {
	var received map[string]any
	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, gateway.PayoutPath, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"true","msg":"accepted","order_details":{"tid":"PRZ-77"}}`))
	}))
	defer partner.Close()

	repo := repository.NewMemoryRepository(zap.NewNop())
	client := gateway.NewPayraizenClient(gateway.Config{BaseURL: partner.URL, Token: "tok", MerchantID: "MID"}, zap.NewNop())
	txSvc := service.NewTransactionService(repo, client, idgen.New(), nil, zap.NewNop())
	webhookSvc := service.NewWebhookService(repo, nil, service.TerminalOverwrite, "", zap.NewNop())
	cfg := &config.Config{PublicRateLimitRPS: 100, WebhookRateLimitRPS: 100}
	a := &testAPI{handler: api.NewRouter(cfg, zap.NewNop(), txSvc, webhookSvc, nil, nil).Routes(), repo: repo}

	w := a.do(t, http.MethodPost, "/api/payout/create", payoutBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "PRZ-77", body["gateway_order_id"])
	assert.Equal(t, "MID", received["mid"])
	assert.Equal(t, body["transaction_id"], received["txn_id"])

	w = a.do(t, http.MethodPost, "/webhook/payraizen", `{"tid":"PRZ-77","status":"SUCCESS","rrn":"R1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored := a.stored(t, body["transaction_id"].(string))
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "R1", stored.SettlementReference)
}

func TestHealthAndMetrics(t *testing.T) {
	a := setupAPI(t)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health/live"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/swagger/index.html"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodGet, tc.path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		})
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	cfg := &config.Config{PublicRateLimitRPS: 10, WebhookRateLimitRPS: 10}
	health := handler.NewHealthHandler().WithCheck("postgres", func(context.Context) error { return context.DeadlineExceeded })
	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, nil, health)

	w := httptest.NewRecorder()
	router.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "postgres unavailable")
}

func computeHMAC(payload []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func generateTestToken(t *testing.T, merchantID string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"merchant_id": merchantID,
		"sub":         merchantID,
		"iss":         testJWTIssuer,
		"aud":         testJWTAudience,
		"iat":         now.Unix(),
		"nbf":         now.Add(-30 * time.Second).Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}
