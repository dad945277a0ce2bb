package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/research-token/internal/config"
	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
)

func setupRouter(t *testing.T, mutate ...func(*config.Config)) (*app, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	cfg.Storage = config.StorageMemory
	cfg.Ledger.ConfirmationDelay = 0
	cfg.Session.Secret = "test-secret"
	cfg.RateLimit.IPPerMinute = 1000
	cfg.RateLimit.FundPerMinute = 100
	cfg.Redis.Addr = ""
	cfg.Stripe.SecretKey = ""
	for _, m := range mutate {
		m(cfg)
	}

	a, err := newApp(context.Background(), cfg, monitoring.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, newRouter(a)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func newSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := doJSON(t, r, "POST", "/api/session", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	_, r := setupRouter(t)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET /health returns OK status", method: "GET", expectedStatus: http.StatusOK},
		{name: "POST /health not routed", method: "POST", expectedStatus: http.StatusNotFound},
		{name: "DELETE /health not routed", method: "DELETE", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, tt.method, "/health", nil, "")
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decode(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, "devnet", body["cluster"])
				assert.Equal(t, false, body["payments"])
			}
		})
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "GET", "/health", nil, "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestSearchEndpoint(t *testing.T) {
	_, r := setupRouter(t)

	tests := []struct {
		name          string
		query         string
		expectedTotal float64
	}{
		{name: "empty query matches all", query: "", expectedTotal: 2},
		{name: "title match", query: "?q=climate", expectedTotal: 1},
		{name: "case insensitive author", query: "?q=sarah%20johnson", expectedTotal: 1},
		{name: "keyword match", query: "?q=oncology", expectedTotal: 1},
		{name: "no match", query: "?q=astrophysics", expectedTotal: 0},
		{name: "year filter", query: "?year=2023", expectedTotal: 1},
		{name: "year range", query: "?year_from=2023&year_to=2024", expectedTotal: 2},
		{name: "journal filter", query: "?journal=nature", expectedTotal: 1},
		{name: "topic filter", query: "?topic=machine%20learning", expectedTotal: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, "GET", "/api/publications/search"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.expectedTotal, body["total_results"])
			assert.GreaterOrEqual(t, body["total_pages"], float64(1))
		})
	}
}

func TestSearchEndpointRejectsBadInput(t *testing.T) {
	_, r := setupRouter(t)

	for _, query := range []string{
		"?q=%3Cscript%3Ealert(1)%3C%2Fscript%3E",
		"?q=" + strings.Repeat("a", 201),
		"?year=abc",
		"?page=-1",
		"?year_from=2024&year_to=2020",
	} {
		w := doJSON(t, r, "GET", "/api/publications/search"+query, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, "validation", decode(t, w)["category"])
	}
}

func TestSearchEndpointHugePage(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "GET", "/api/publications/search?page=100000000000000000&page_size=100", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Empty(t, body["publications"])
	assert.Equal(t, float64(2), body["total_results"])
}

func TestSearchEndpointIsCached(t *testing.T) {
	_, r := setupRouter(t)

	first := doJSON(t, r, "GET", "/api/publications/search?q=climate", nil, "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := doJSON(t, r, "GET", "/api/publications/search?q=climate", nil, "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPublicationEndpoints(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "GET", "/api/publications/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	impact := decode(t, w)["impact"].(map[string]interface{})
	assert.InDelta(t, 5.84, impact["score"], 1e-9)
	assert.Equal(t, false, impact["eligible_for_tokenization"])

	w = doJSON(t, r, "GET", "/api/publications/2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	impact = decode(t, w)["impact"].(map[string]interface{})
	assert.InDelta(t, 6.37, impact["score"], 1e-9)
	assert.Equal(t, true, impact["eligible_for_tokenization"])

	w = doJSON(t, r, "GET", "/api/publications/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, "GET", "/api/publications/1/analysis", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decode(t, w)["impact_analysis"].(map[string]interface{})
	assert.Equal(t, 8.5, analysis["innovation"])
}

func TestScoreEndpoint(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "POST", "/api/score", map[string]interface{}{
		"novelty_score":         89,
		"citation_count":        156,
		"peer_review_count":     7,
		"journal_impact_factor": 32.4,
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 5.84, body["score"], 1e-9)
	assert.Equal(t, false, body["eligible_for_tokenization"])

	breakdown := body["breakdown"].(map[string]interface{})
	assert.InDelta(t, 3.56, breakdown["novelty"], 1e-9)
	assert.InDelta(t, 0.94, breakdown["citations"], 1e-9)
	assert.InDelta(t, 0.70, breakdown["peer_reviews"], 1e-9)
	assert.InDelta(t, 0.65, breakdown["journal_impact"], 1e-9)

	req, _ := http.NewRequest("POST", "/api/score", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateEndpoint(t *testing.T) {
	_, r := setupRouter(t)

	tests := []struct {
		score    float64
		amount   float64
		tokens   float64
		eligible bool
	}{
		{score: 6.0, amount: 1.0, tokens: 10, eligible: true},
		{score: 7.5, amount: 2, tokens: 25, eligible: true},
		{score: 5.99, amount: 100, tokens: 0, eligible: false},
	}

	for _, tt := range tests {
		w := doJSON(t, r, "POST", "/api/tokens/estimate", map[string]float64{"score": tt.score, "funding_amount": tt.amount}, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.InDelta(t, tt.tokens, body["token_amount"], 1e-9)
		assert.Equal(t, tt.eligible, body["eligible"])
	}
}

func TestSessionRequired(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "GET", "/api/wallet", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, "GET", "/api/wallet", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])
}

func TestWalletFlow(t *testing.T) {
	_, r := setupRouter(t)
	token := newSession(t, r)

	w := doJSON(t, r, "GET", "/api/wallet", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	wallet := decode(t, w)["wallet"].(map[string]interface{})
	assert.Equal(t, false, wallet["connected"])

	w = doJSON(t, r, "POST", "/api/wallet/connect", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	wallet = decode(t, w)["wallet"].(map[string]interface{})
	assert.Equal(t, true, wallet["connected"])
	assert.Equal(t, false, wallet["connecting"])
	key := wallet["public_key"].(string)
	assert.NotEmpty(t, key)

	// connecting again keeps the same key
	w = doJSON(t, r, "POST", "/api/wallet/connect", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, key, decode(t, w)["wallet"].(map[string]interface{})["public_key"])

	w = doJSON(t, r, "POST", "/api/wallet/disconnect", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	wallet = decode(t, w)["wallet"].(map[string]interface{})
	assert.Equal(t, false, wallet["connected"])
	assert.Nil(t, wallet["public_key"])
}

func TestFundFlow(t *testing.T) {
	_, r := setupRouter(t)
	token := newSession(t, r)

	w := doJSON(t, r, "POST", "/api/wallet/connect", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id": "2",
		"funding_amount": 1.0,
		"payment_method": "crypto",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode(t, w)
	assert.Equal(t, true, result["success"])
	assert.InDelta(t, 10.62, result["token_amount"], 1e-9)
	assert.Equal(t, "Successfully funded research with 1 SOL and received 10.62 RES tokens", result["message"])
	assert.Len(t, result["tx_signature"], 64)
	assert.Contains(t, result["explorer_url"], "?cluster=devnet")
	address := result["account"].(string)
	require.NotEmpty(t, address)

	// the outcome is pushed to the session as a toast
	w = doJSON(t, r, "GET", "/api/wallet", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	toasts := decode(t, w)["toasts"].([]interface{})
	require.Len(t, toasts, 1)
	toast := toasts[0].(map[string]interface{})
	assert.Equal(t, "success", toast["type"])
	assert.Equal(t, "Funding Successful", toast["title"])
	assert.Equal(t, "You've successfully funded this research and earned 10.62 RES tokens!", toast["message"])

	w = doJSON(t, r, "DELETE", "/api/toasts/"+toast["id"].(string), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["toasts"])

	// history, account and leaderboard reflect the funding
	w = doJSON(t, r, "GET", "/api/publications/2/fundings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(t, r, "GET", "/api/accounts/"+address, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	account := decode(t, w)
	assert.Equal(t, true, account["is_active"])
	assert.Equal(t, float64(1_000_000_000), account["current_funding"])
	assert.Equal(t, float64(1062), account["token_supply"])

	w = doJSON(t, r, "GET", "/api/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["entries"].([]interface{})
	require.Len(t, entries, 2)
	top := entries[0].(map[string]interface{})
	assert.Equal(t, "2", top["publication_id"])
	assert.Equal(t, float64(1), top["total_funding"])

	w = doJSON(t, r, "GET", "/api/leaderboard/2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["rank"])
}

func TestFundLeaderboardCacheInvalidated(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "GET", "/api/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	top := decode(t, w)["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(0), top["total_funding"])

	w = doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id": "2",
		"funding_amount": 2.0,
		"payment_method": "fiat",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, "GET", "/api/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	top = decode(t, w)["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2", top["publication_id"])
	assert.Equal(t, float64(2), top["total_funding"])
	assert.InDelta(t, 21.23, top["total_tokens"], 1e-9)
}

func TestFundRejections(t *testing.T) {
	_, r := setupRouter(t)

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
	}{
		{name: "missing publication id", body: map[string]interface{}{"funding_amount": 1.0}, expectedStatus: http.StatusBadRequest},
		{name: "zero amount", body: map[string]interface{}{"publication_id": "2", "funding_amount": 0, "wallet_public_key": "11111111111111111111111111111111"}, expectedStatus: http.StatusBadRequest},
		{name: "negative amount", body: map[string]interface{}{"publication_id": "2", "funding_amount": -1, "wallet_public_key": "11111111111111111111111111111111"}, expectedStatus: http.StatusBadRequest},
		{name: "crypto without wallet", body: map[string]interface{}{"publication_id": "2", "funding_amount": 1.0, "payment_method": "crypto"}, expectedStatus: http.StatusBadRequest},
		{name: "unknown publication", body: map[string]interface{}{"publication_id": "999", "funding_amount": 1.0, "payment_method": "fiat"}, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, "POST", "/api/fund", tt.body, "")
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestFundIneligiblePublication(t *testing.T) {
	_, r := setupRouter(t)
	token := newSession(t, r)
	doJSON(t, r, "POST", "/api/wallet/connect", nil, token)

	w := doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id": "1",
		"funding_amount": 1.0,
	}, token)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)
	assert.Equal(t, false, result["success"])
	assert.Nil(t, result["tx_signature"])

	w = doJSON(t, r, "GET", "/api/wallet", nil, token)
	toasts := decode(t, w)["toasts"].([]interface{})
	require.Len(t, toasts, 1)
	assert.Equal(t, "warning", toasts[0].(map[string]interface{})["type"])
}

func TestFundErrorToast(t *testing.T) {
	_, r := setupRouter(t)
	token := newSession(t, r)

	// no wallet connected and none given
	w := doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id": "2",
		"funding_amount": 1.0,
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, "GET", "/api/wallet", nil, token)
	toasts := decode(t, w)["toasts"].([]interface{})
	require.Len(t, toasts, 1)
	toast := toasts[0].(map[string]interface{})
	assert.Equal(t, "error", toast["type"])
	assert.Equal(t, "Funding Failed", toast["title"])
	assert.Nil(t, toast["expires_at"])
}

func TestAccountStatus(t *testing.T) {
	a, r := setupRouter(t)

	w := doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id":    "2",
		"funding_amount":    1.0,
		"wallet_public_key": "11111111111111111111111111111111",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	address := decode(t, w)["account"].(string)

	w = doJSON(t, r, "POST", "/api/accounts/"+address+"/status", map[string]interface{}{
		"signer": "11111111111111111111111111111111",
		"active": false,
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// no signer
	w = doJSON(t, r, "POST", "/api/accounts/"+address+"/status", map[string]interface{}{
		"active": false,
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_AUTHORITY", decode(t, w)["code"])

	w = doJSON(t, r, "GET", "/api/accounts/"+address, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_active"])

	w = doJSON(t, r, "POST", "/api/accounts/"+address+"/status", map[string]interface{}{
		"signer": a.tokens.Authority(),
		"active": false,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["account"].(map[string]interface{})["is_active"])

	w = doJSON(t, r, "POST", "/api/accounts/"+address+"/status", map[string]interface{}{"signer": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Active: failed on the 'required' rule", decode(t, w)["details"])

	w = doJSON(t, r, "POST", "/api/fund", map[string]interface{}{
		"publication_id":    "2",
		"funding_amount":    1.0,
		"wallet_public_key": "11111111111111111111111111111111",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, "GET", "/api/accounts/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFundRateLimit(t *testing.T) {
	_, r := setupRouter(t, func(c *config.Config) { c.RateLimit.FundPerMinute = 1 })

	body := map[string]interface{}{"publication_id": "2", "funding_amount": 1.0, "payment_method": "fiat"}

	w := doJSON(t, r, "POST", "/api/fund", body, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Endpoint-Limit"))

	w = doJSON(t, r, "POST", "/api/fund", body, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other endpoints still answer
	w = doJSON(t, r, "GET", "/api/publications/2", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentsNotConfigured(t *testing.T) {
	_, r := setupRouter(t)

	w := doJSON(t, r, "POST", "/api/payments/checkout", map[string]interface{}{"publication_id": "2", "amount": 10}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, r, "POST", "/api/payments/webhook", map[string]interface{}{"type": "checkout.session.completed"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestObservabilityEndpoints(t *testing.T) {
	_, r := setupRouter(t)

	doJSON(t, r, "GET", "/api/publications/2", nil, "")

	w := doJSON(t, r, "GET", "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "total_requests")

	w = doJSON(t, r, "GET", "/metrics/prometheus", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "requests_total")

	w = doJSON(t, r, "GET", "/cache/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "http")
	assert.Contains(t, body, "leaderboard")
	assert.Contains(t, body, "ratelimit")
	assert.NotContains(t, body, "database")

	w = doJSON(t, r, "GET", "/api/ratelimit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["redis_enabled"])
}
