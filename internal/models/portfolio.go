// Package models defines data structures for Sage
package models

import (
	"time"
)

// DustThreshold is the residual quantity below which a position is considered
// closed. Selling down to or below this removes the holding entirely.
const DustThreshold = 1e-6

// TradeSide indicates the direction of a trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Valid reports whether the side is one of the two known directions.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Trade is an immutable record of one executed simulated trade. Records are
// append-only — the trade history is the audit log and is never edited.
type Trade struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       TradeSide `json:"type"`
	AssetID    string    `json:"asset_id"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	TotalValue float64   `json:"total_value"`
}

// Holding represents an open position in one asset.
type Holding struct {
	AssetID         string   `json:"asset_id"`
	Symbol          string   `json:"symbol"`
	Amount          float64  `json:"amount"`
	AverageBuyPrice float64  `json:"average_buy_price"` // volume-weighted cost of the open position
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
}

// PerformancePoint is a single point in the net-worth-over-time series.
type PerformancePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Portfolio is the root aggregate for one identity: cash, open positions,
// and the append-only trade and performance histories.
type Portfolio struct {
	Identity           string             `json:"identity"`
	CashBalance        float64            `json:"cash_balance"`
	Holdings           map[string]Holding `json:"holdings"`
	TradeHistory       []Trade            `json:"trade_history"`
	PerformanceHistory []PerformancePoint `json:"performance_history"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewPortfolio creates a freshly seeded portfolio with the starting balance
// and a single initial performance point.
func NewPortfolio(identity string, startingBalance float64) *Portfolio {
	now := time.Now()
	return &Portfolio{
		Identity:     identity,
		CashBalance:  startingBalance,
		Holdings:     make(map[string]Holding),
		TradeHistory: []Trade{},
		PerformanceHistory: []PerformancePoint{
			{Timestamp: now, Value: startingBalance},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy. Mutations compute the next state on a clone and
// publish it whole, so readers never observe a half-updated portfolio.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		Identity:    p.Identity,
		CashBalance: p.CashBalance,
		Holdings:    make(map[string]Holding, len(p.Holdings)),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for id, h := range p.Holdings {
		if h.StopLossPrice != nil {
			sl := *h.StopLossPrice
			h.StopLossPrice = &sl
		}
		c.Holdings[id] = h
	}
	c.TradeHistory = make([]Trade, len(p.TradeHistory))
	copy(c.TradeHistory, p.TradeHistory)
	c.PerformanceHistory = make([]PerformancePoint, len(p.PerformanceHistory))
	copy(c.PerformanceHistory, p.PerformanceHistory)
	return c
}

// HoldingsValue returns the market value of all open positions priced against
// the given snapshot. Assets missing from the snapshot value at zero.
func (p *Portfolio) HoldingsValue(snapshot *PriceSnapshot) float64 {
	total := 0.0
	for _, h := range p.Holdings {
		if price, ok := snapshot.Price(h.AssetID); ok {
			total += h.Amount * price
		}
	}
	return total
}

// NetWorth returns cash plus the market value of all holdings at snapshot prices.
func (p *Portfolio) NetWorth(snapshot *PriceSnapshot) float64 {
	return p.CashBalance + p.HoldingsValue(snapshot)
}
