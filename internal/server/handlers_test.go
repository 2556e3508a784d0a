package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptosage/sage/internal/app"
	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/models"
	"github.com/cryptosage/sage/internal/services/intent"
	"github.com/cryptosage/sage/internal/services/ledger"
	"github.com/cryptosage/sage/internal/services/market"
	"github.com/cryptosage/sage/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := common.NewSilentLogger()

	config := common.NewDefaultConfig()
	config.Storage.Internal.Path = t.TempDir()
	config.Storage.User.Path = t.TempDir()

	manager, err := storage.NewManager(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	ledgerService := ledger.NewService(manager, config.Ledger.StartingBalance, logger)
	marketService := market.NewService(nil, logger) // fallback snapshot only

	a := &app.App{
		Config:        config,
		Logger:        logger,
		Storage:       manager,
		MarketService: marketService,
		LedgerService: ledgerService,
		IntentRouter:  intent.NewRouter(ledgerService, logger),
		StartupTime:   time.Now(),
	}

	return NewServer(a)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/version", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.NotEmpty(t, body["version"])
}

func TestPricesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/prices", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.PriceSnapshot
	decodeBody(t, rec, &snapshot)
	require.NotEmpty(t, snapshot.Assets)
	_, ok := snapshot.ByID("bitcoin")
	assert.True(t, ok)
}

func TestPortfolioSeededOnFirstGet(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio", nil,
		map[string]string{"X-Sage-Identity": "Alice@Example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	// Identity header is normalized.
	assert.Equal(t, "alice@example.com", body["identity"])
	assert.Equal(t, 50000.0, body["cash_balance"])
	assert.Equal(t, 50000.0, body["net_worth"])
}

func TestTradeBuyBySymbol(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "btc",
		"side":   "buy",
		"amount": 0.1,
	}, map[string]string{"X-Sage-Identity": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Trade     models.Trade           `json:"trade"`
		Portfolio map[string]interface{} `json:"portfolio"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, models.TradeSideBuy, body.Trade.Type)
	assert.Equal(t, "bitcoin", body.Trade.AssetID)
	// Fallback BTC price is 96543.
	assert.InDelta(t, 9654.3, body.Trade.TotalValue, 1e-6)
	assert.InDelta(t, 50000-9654.3, body.Portfolio["cash_balance"].(float64), 1e-6)
}

func TestTradeInsufficientFunds(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC",
		"side":   "buy",
		"amount": 10,
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "insufficient_funds", body.Code)
}

func TestTradeInvalidSide(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC",
		"side":   "hold",
		"amount": 1,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradeInvalidAmount(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC",
		"side":   "buy",
		"amount": -1,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "invalid_amount", body.Code)
}

func TestTradeUnknownSymbol(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "WAT",
		"side":   "buy",
		"amount": 1,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "unknown_asset", body.Code)
}

func TestSellWithoutPosition(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "ETH",
		"side":   "sell",
		"amount": 1,
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "insufficient_holdings", body.Code)
}

func TestStopLossLifecycle(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"X-Sage-Identity": "alice"}

	// No position yet.
	rec := doRequest(t, srv, http.MethodPost, "/api/stoploss", map[string]interface{}{
		"symbol": "BTC",
		"price":  90000,
	}, headers)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC", "side": "buy", "amount": 0.1,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/stoploss", map[string]interface{}{
		"symbol": "BTC",
		"price":  90000,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Holdings []struct {
			AssetID       string   `json:"asset_id"`
			StopLossPrice *float64 `json:"stop_loss_price"`
		} `json:"holdings"`
	}
	decodeBody(t, rec, &view)
	require.Len(t, view.Holdings, 1)
	require.NotNil(t, view.Holdings[0].StopLossPrice)
	assert.Equal(t, 90000.0, *view.Holdings[0].StopLossPrice)

	// Clear with a null price.
	rec = doRequest(t, srv, http.MethodPost, "/api/stoploss", map[string]interface{}{
		"symbol": "BTC",
		"price":  nil,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	view.Holdings = nil
	decodeBody(t, rec, &view)
	require.Len(t, view.Holdings, 1)
	assert.Nil(t, view.Holdings[0].StopLossPrice)
}

func TestStopLossNegativePrice(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/stoploss", map[string]interface{}{
		"symbol": "BTC",
		"price":  -5,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolioReset(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"X-Sage-Identity": "alice"}

	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "SOL", "side": "buy", "amount": 10,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/portfolio/reset", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, 50000.0, body["cash_balance"])
	assert.Empty(t, body["holdings"])
}

func TestPerformanceChart(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"X-Sage-Identity": "alice"}

	// One seed point only — not enough to draw a line.
	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/performance/chart", nil, headers)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC", "side": "buy", "amount": 0.1,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/portfolio/performance/chart", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestChatUnavailableWithoutAssistant(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/chat", map[string]interface{}{
		"message": "hello",
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLastIdentityRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/identity/last", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/identity/last", map[string]interface{}{
		"identity": " Alice@Example.com ",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/identity/last", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "alice@example.com", body["identity"])
}

func TestIdentityViaQueryParam(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio?identity=bob", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "bob", body["identity"])
}

func TestIdentitiesAreIsolated(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/trade", map[string]interface{}{
		"symbol": "BTC", "side": "buy", "amount": 0.1,
	}, map[string]string{"X-Sage-Identity": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/portfolio", nil,
		map[string]string{"X-Sage-Identity": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, 50000.0, body["cash_balance"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodDelete, "/api/portfolio", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodOptions, "/api/portfolio", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorrelationIDHeader(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil,
		map[string]string{"X-Request-ID": "test-123"})
	assert.Equal(t, "test-123", rec.Header().Get("X-Correlation-ID"))
}
