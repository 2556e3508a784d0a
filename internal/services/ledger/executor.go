package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

// applyTrade computes the next portfolio state for one trade. It never
// mutates prev: validation happens first, and only a fully valid trade
// produces a new state. The same snapshot prices the traded asset and the
// net-worth revaluation of every other holding.
func applyTrade(prev *models.Portfolio, assetID string, side models.TradeSide, amount float64, snapshot *models.PriceSnapshot) (*models.Portfolio, *models.Trade, error) {
	if !side.Valid() {
		return nil, nil, fmt.Errorf("unknown trade side '%s'", side)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, nil, fmt.Errorf("amount %v: %w", amount, interfaces.ErrInvalidAmount)
	}

	asset, ok := snapshot.ByID(assetID)
	if !ok {
		return nil, nil, fmt.Errorf("asset '%s' not in price snapshot: %w", assetID, interfaces.ErrUnknownAsset)
	}

	price := asset.CurrentPrice
	totalValue := amount * price

	next := prev.Clone()

	switch side {
	case models.TradeSideBuy:
		if next.CashBalance < totalValue {
			return nil, nil, fmt.Errorf("buy requires %.2f, have %.2f: %w",
				totalValue, next.CashBalance, interfaces.ErrInsufficientFunds)
		}

		holding := next.Holdings[assetID]
		if holding.AssetID == "" {
			// Fresh position (or re-opened after a full close): cost basis
			// starts from zero.
			holding = models.Holding{AssetID: assetID, Symbol: asset.Symbol}
		}

		totalCost := holding.Amount*holding.AverageBuyPrice + totalValue
		holding.Amount += amount
		holding.AverageBuyPrice = totalCost / holding.Amount
		next.Holdings[assetID] = holding
		next.CashBalance -= totalValue

	case models.TradeSideSell:
		holding, held := next.Holdings[assetID]
		if !held || holding.Amount < amount {
			return nil, nil, fmt.Errorf("sell %v of '%s', hold %v: %w",
				amount, assetID, holding.Amount, interfaces.ErrInsufficientHoldings)
		}

		holding.Amount -= amount
		next.CashBalance += totalValue

		// A position reduced to dust is closed outright, stop-loss included.
		// Average cost of the remaining units is unaffected by a partial sell.
		if holding.Amount <= models.DustThreshold {
			delete(next.Holdings, assetID)
		} else {
			next.Holdings[assetID] = holding
		}
	}

	now := time.Now()
	trade := models.Trade{
		ID:         uuid.New().String(),
		Timestamp:  now,
		Type:       side,
		AssetID:    assetID,
		Symbol:     asset.Symbol,
		Amount:     amount,
		Price:      price,
		TotalValue: totalValue,
	}

	next.TradeHistory = append(next.TradeHistory, trade)
	next.PerformanceHistory = append(next.PerformanceHistory, models.PerformancePoint{
		Timestamp: now,
		Value:     next.NetWorth(snapshot),
	})
	next.UpdatedAt = now

	return next, &trade, nil
}
