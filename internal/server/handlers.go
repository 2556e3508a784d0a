package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
	"github.com/cryptosage/sage/internal/services/ledger"
)

const lastIdentityKey = "last_identity"

// holdingView is a holding valued against the current price snapshot.
type holdingView struct {
	models.Holding
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	ProfitLoss   float64 `json:"profit_loss"`
}

// portfolioView is the API shape of a portfolio: stored state plus valuation
// at one consistent snapshot.
type portfolioView struct {
	Identity           string                    `json:"identity"`
	CashBalance        float64                   `json:"cash_balance"`
	Holdings           []holdingView             `json:"holdings"`
	HoldingsValue      float64                   `json:"holdings_value"`
	NetWorth           float64                   `json:"net_worth"`
	TradeHistory       []models.Trade            `json:"trade_history"`
	PerformanceHistory []models.PerformancePoint `json:"performance_history"`
}

func buildPortfolioView(portfolio *models.Portfolio, snapshot *models.PriceSnapshot) *portfolioView {
	view := &portfolioView{
		Identity:           portfolio.Identity,
		CashBalance:        portfolio.CashBalance,
		Holdings:           []holdingView{},
		TradeHistory:       portfolio.TradeHistory,
		PerformanceHistory: portfolio.PerformanceHistory,
	}

	ids := make([]string, 0, len(portfolio.Holdings))
	for id := range portfolio.Holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		h := portfolio.Holdings[id]
		price, _ := snapshot.Price(id)
		view.Holdings = append(view.Holdings, holdingView{
			Holding:      h,
			CurrentPrice: price,
			MarketValue:  h.Amount * price,
			ProfitLoss:   h.Amount * (price - h.AverageBuyPrice),
		})
	}

	view.HoldingsValue = portfolio.HoldingsValue(snapshot)
	view.NetWorth = portfolio.NetWorth(snapshot)
	return view
}

// handlePrices handles GET /api/prices — the current snapshot.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, s.app.MarketService.Snapshot())
}

// handlePortfolio handles GET /api/portfolio — state valued at current prices.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	identity := common.IdentityFromContext(r.Context())
	portfolio, err := s.app.LedgerService.GetPortfolio(r.Context(), identity)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load portfolio: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, buildPortfolioView(portfolio, s.app.MarketService.Snapshot()))
}

// handlePortfolioReset handles POST /api/portfolio/reset.
func (s *Server) handlePortfolioReset(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	identity := common.IdentityFromContext(r.Context())
	portfolio, err := s.app.LedgerService.ResetPortfolio(r.Context(), identity)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to reset portfolio: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, buildPortfolioView(portfolio, s.app.MarketService.Snapshot()))
}

// handlePerformanceChart handles GET /api/portfolio/performance/chart — PNG
// of net worth over time.
func (s *Server) handlePerformanceChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	identity := common.IdentityFromContext(r.Context())
	portfolio, err := s.app.LedgerService.GetPortfolio(r.Context(), identity)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load portfolio: "+err.Error())
		return
	}

	png, err := ledger.RenderPerformanceChart(portfolio.PerformanceHistory)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "Cannot render chart: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// tradeRequest is the API shape for POST /api/trade. The asset may be named
// by stable ID or display symbol.
type tradeRequest struct {
	AssetID string  `json:"asset_id,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	Side    string  `json:"side"`
	Amount  float64 `json:"amount"`
}

// handleTrade handles POST /api/trade.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req tradeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	side := models.TradeSide(req.Side)
	if !side.Valid() {
		WriteError(w, http.StatusBadRequest, "side must be 'buy' or 'sell'")
		return
	}

	// One snapshot for resolution, pricing, and revaluation.
	snapshot := s.app.MarketService.Snapshot()

	assetID := req.AssetID
	if assetID == "" && req.Symbol != "" {
		asset, ok := snapshot.BySymbol(req.Symbol)
		if !ok {
			WriteErrorWithCode(w, http.StatusBadRequest, "Unknown asset symbol: "+req.Symbol, "unknown_asset")
			return
		}
		assetID = asset.ID
	}
	if assetID == "" {
		WriteError(w, http.StatusBadRequest, "asset_id or symbol is required")
		return
	}

	identity := common.IdentityFromContext(r.Context())
	trade, err := s.app.LedgerService.ExecuteTrade(r.Context(), identity, assetID, side, req.Amount, snapshot)
	if err != nil {
		writeTradeError(w, err)
		return
	}

	portfolio, err := s.app.LedgerService.GetPortfolio(r.Context(), identity)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Trade executed but failed to load portfolio: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trade":     trade,
		"portfolio": buildPortfolioView(portfolio, snapshot),
	})
}

// writeTradeError maps ledger rejections to HTTP status codes.
func writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrUnknownAsset):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "unknown_asset")
	case errors.Is(err, interfaces.ErrInvalidAmount):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_amount")
	case errors.Is(err, interfaces.ErrInsufficientFunds):
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_funds")
	case errors.Is(err, interfaces.ErrInsufficientHoldings):
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_holdings")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// stopLossRequest is the API shape for POST /api/stoploss. A null or absent
// price clears the directive.
type stopLossRequest struct {
	AssetID string   `json:"asset_id,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
	Price   *float64 `json:"price"`
}

// handleStopLoss handles POST /api/stoploss.
func (s *Server) handleStopLoss(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req stopLossRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	snapshot := s.app.MarketService.Snapshot()

	assetID := req.AssetID
	if assetID == "" && req.Symbol != "" {
		asset, ok := snapshot.BySymbol(req.Symbol)
		if !ok {
			WriteErrorWithCode(w, http.StatusBadRequest, "Unknown asset symbol: "+req.Symbol, "unknown_asset")
			return
		}
		assetID = asset.ID
	}
	if assetID == "" {
		WriteError(w, http.StatusBadRequest, "asset_id or symbol is required")
		return
	}

	if req.Price != nil && *req.Price <= 0 {
		WriteError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	identity := common.IdentityFromContext(r.Context())
	applied, err := s.app.LedgerService.SetStopLoss(r.Context(), identity, assetID, req.Price)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to set stop loss: "+err.Error())
		return
	}
	if !applied {
		WriteErrorWithCode(w, http.StatusNotFound, "No open position for asset: "+assetID, "no_position")
		return
	}

	portfolio, err := s.app.LedgerService.GetPortfolio(r.Context(), identity)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load portfolio: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, buildPortfolioView(portfolio, snapshot))
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.ChatService == nil {
		WriteError(w, http.StatusServiceUnavailable, "Assistant not configured - set a Gemini API key")
		return
	}

	var req models.ChatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	identity := common.IdentityFromContext(r.Context())
	response, err := s.app.ChatService.SendMessage(r.Context(), identity, &req)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "Assistant request failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, response)
}

// handleLastIdentity handles GET and PUT /api/identity/last — a convenience
// key the web UI uses to restore the previous session.
func (s *Server) handleLastIdentity(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}

	kv := s.app.Storage.SystemKV()

	if r.Method == http.MethodGet {
		identity, err := kv.Get(r.Context(), lastIdentityKey)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "No last identity recorded")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"identity": identity})
		return
	}

	var req struct {
		Identity string `json:"identity"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	identity := common.NormalizeIdentity(req.Identity)
	if identity == "" {
		WriteError(w, http.StatusBadRequest, "identity is required")
		return
	}

	if err := kv.Set(r.Context(), lastIdentityKey, identity); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"identity": identity})
}
