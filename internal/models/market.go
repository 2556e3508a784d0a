package models

import (
	"strings"
	"time"
)

// AssetPrice is the current market state of one asset within a snapshot.
type AssetPrice struct {
	ID           string  `json:"id"`     // stable CoinGecko identifier (e.g. "bitcoin")
	Symbol       string  `json:"symbol"` // display symbol (e.g. "BTC")
	Name         string  `json:"name"`
	CurrentPrice float64 `json:"current_price"`
	Change24hPct float64 `json:"price_change_percentage_24h"`
}

// SimplePrice is the per-asset payload of the CoinGecko simple/price endpoint.
type SimplePrice struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
}

// PriceSnapshot is an immutable, time-stamped set of current prices. One
// snapshot is used consistently for the whole of a single ledger operation —
// both for the traded asset and for revaluing every other holding.
type PriceSnapshot struct {
	TakenAt time.Time    `json:"taken_at"`
	Assets  []AssetPrice `json:"assets"`
}

// Price returns the current price for an asset ID.
func (s *PriceSnapshot) Price(assetID string) (float64, bool) {
	for i := range s.Assets {
		if s.Assets[i].ID == assetID {
			return s.Assets[i].CurrentPrice, true
		}
	}
	return 0, false
}

// ByID returns the asset entry for a stable asset ID.
func (s *PriceSnapshot) ByID(assetID string) (*AssetPrice, bool) {
	for i := range s.Assets {
		if s.Assets[i].ID == assetID {
			return &s.Assets[i], true
		}
	}
	return nil, false
}

// BySymbol resolves a display symbol case-insensitively to its asset entry.
func (s *PriceSnapshot) BySymbol(symbol string) (*AssetPrice, bool) {
	for i := range s.Assets {
		if strings.EqualFold(s.Assets[i].Symbol, symbol) {
			return &s.Assets[i], true
		}
	}
	return nil, false
}

// Clone returns a copy the caller may hold without racing snapshot refreshes.
func (s *PriceSnapshot) Clone() *PriceSnapshot {
	c := &PriceSnapshot{TakenAt: s.TakenAt, Assets: make([]AssetPrice, len(s.Assets))}
	copy(c.Assets, s.Assets)
	return c
}
