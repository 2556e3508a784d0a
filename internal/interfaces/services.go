package interfaces

import (
	"context"
	"errors"

	"github.com/cryptosage/sage/internal/models"
)

// Trading rejection taxonomy. All are expected, recoverable outcomes decided
// before any portfolio mutation — a rejected call leaves state untouched.
var (
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// LedgerService owns the per-identity portfolio ledger: balances, holdings,
// average cost basis, stop-loss directives, and the trade and performance
// histories. Every mutation is all-or-nothing and serialized per identity.
type LedgerService interface {
	// GetPortfolio returns a snapshot copy of the identity's portfolio,
	// seeding a fresh one on first access.
	GetPortfolio(ctx context.Context, identity string) (*models.Portfolio, error)

	// ExecuteTrade validates and applies a buy or sell at the snapshot price.
	// On success exactly one Trade and one PerformancePoint are appended.
	// Rejections return one of the taxonomy errors with no state change.
	ExecuteTrade(ctx context.Context, identity, assetID string, side models.TradeSide, amount float64, snapshot *models.PriceSnapshot) (*models.Trade, error)

	// SetStopLoss sets or clears (price == nil) the stop-loss directive on a
	// holding. Returns false when the holding does not exist — a no-op that
	// never creates a position.
	SetStopLoss(ctx context.Context, identity, assetID string, price *float64) (bool, error)

	// ResetPortfolio replaces the portfolio with a freshly seeded instance.
	ResetPortfolio(ctx context.Context, identity string) (*models.Portfolio, error)
}

// MarketService owns the current price snapshot.
type MarketService interface {
	// Snapshot returns an immutable copy of the current prices. Callers pass
	// one snapshot through an entire ledger operation.
	Snapshot() *models.PriceSnapshot

	// Refresh fetches fresh prices and replaces the snapshot used by
	// subsequent calls. An in-flight operation keeps the snapshot it holds.
	Refresh(ctx context.Context) error
}

// ChatService orchestrates one assistant round-trip: portfolio context in,
// assistant reply out, tool calls executed through the intent router.
type ChatService interface {
	SendMessage(ctx context.Context, identity string, req *models.ChatRequest) (*models.ChatResponse, error)
}
