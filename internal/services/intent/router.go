// Package intent routes assistant function calls into ledger operations.
// The loose command bags the assistant emits are validated into typed intents
// here, executed, and summarized back as plain-text results the assistant can
// relay to the user.
package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

// Router executes validated assistant commands against the ledger.
type Router struct {
	ledger interfaces.LedgerService
	logger *common.Logger
}

// NewRouter creates a command router.
func NewRouter(ledger interfaces.LedgerService, logger *common.Logger) *Router {
	return &Router{ledger: ledger, logger: logger}
}

// Dispatch validates and executes one assistant command. The returned string
// is the tool result relayed back to the assistant; trading rejections become
// readable results rather than errors so the conversation can continue.
// Unknown command names are ignored with an empty result. Only infrastructure
// failures surface as errors.
func (r *Router) Dispatch(ctx context.Context, identity string, cmd models.Command, snapshot *models.PriceSnapshot) (string, error) {
	parsed, err := models.ParseCommand(cmd)
	if err != nil {
		var unknown *models.ErrUnknownCommand
		if errors.As(err, &unknown) {
			r.logger.Warn().Str("command", cmd.Name).Msg("Ignoring unknown assistant command")
			return "", nil
		}
		return fmt.Sprintf("Rejected: %v.", err), nil
	}

	switch intent := parsed.(type) {
	case models.TradeIntent:
		return r.dispatchTrade(ctx, identity, intent, snapshot)
	case models.StopLossIntent:
		return r.dispatchStopLoss(ctx, identity, intent, snapshot)
	default:
		return "", nil
	}
}

func (r *Router) dispatchTrade(ctx context.Context, identity string, intent models.TradeIntent, snapshot *models.PriceSnapshot) (string, error) {
	asset, ok := snapshot.BySymbol(intent.Symbol)
	if !ok {
		return fmt.Sprintf("Trade rejected: %s is not a tracked asset.", intent.Symbol), nil
	}

	trade, err := r.ledger.ExecuteTrade(ctx, identity, asset.ID, intent.Side, intent.Amount, snapshot)
	if err != nil {
		if msg, ok := rejectionMessage(err, intent, asset); ok {
			return msg, nil
		}
		return "", fmt.Errorf("trade dispatch failed: %w", err)
	}

	verb := "Bought"
	if trade.Type == models.TradeSideSell {
		verb = "Sold"
	}
	return fmt.Sprintf("%s %g %s at $%.2f for a total of $%.2f.",
		verb, trade.Amount, trade.Symbol, trade.Price, trade.TotalValue), nil
}

func (r *Router) dispatchStopLoss(ctx context.Context, identity string, intent models.StopLossIntent, snapshot *models.PriceSnapshot) (string, error) {
	asset, ok := snapshot.BySymbol(intent.Symbol)
	if !ok {
		return fmt.Sprintf("Stop-loss rejected: %s is not a tracked asset.", intent.Symbol), nil
	}

	applied, err := r.ledger.SetStopLoss(ctx, identity, asset.ID, intent.Price)
	if err != nil {
		return "", fmt.Errorf("stop-loss dispatch failed: %w", err)
	}
	if !applied {
		return fmt.Sprintf("Stop-loss rejected: no open %s position.", asset.Symbol), nil
	}
	if intent.Price == nil {
		return fmt.Sprintf("Cleared the stop-loss on %s.", asset.Symbol), nil
	}
	return fmt.Sprintf("Set a stop-loss on %s at $%.2f.", asset.Symbol, *intent.Price), nil
}

// rejectionMessage maps ledger rejections to results the assistant can
// explain to the user.
func rejectionMessage(err error, intent models.TradeIntent, asset *models.AssetPrice) (string, bool) {
	cost := intent.Amount * asset.CurrentPrice
	switch {
	case errors.Is(err, interfaces.ErrInsufficientFunds):
		return fmt.Sprintf("Trade rejected: buying %g %s costs $%.2f, more cash than the portfolio holds.",
			intent.Amount, asset.Symbol, cost), true
	case errors.Is(err, interfaces.ErrInsufficientHoldings):
		return fmt.Sprintf("Trade rejected: the portfolio does not hold %g %s to sell.",
			intent.Amount, asset.Symbol), true
	case errors.Is(err, interfaces.ErrInvalidAmount):
		return fmt.Sprintf("Trade rejected: %g is not a valid amount.", intent.Amount), true
	case errors.Is(err, interfaces.ErrUnknownAsset):
		return fmt.Sprintf("Trade rejected: %s is not a tracked asset.", asset.Symbol), true
	default:
		return "", false
	}
}
