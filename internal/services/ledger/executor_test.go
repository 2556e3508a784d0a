package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

func testSnapshot(prices map[string]float64) *models.PriceSnapshot {
	symbols := map[string]string{
		"bitcoin":  "BTC",
		"ethereum": "ETH",
		"solana":   "SOL",
	}
	snapshot := &models.PriceSnapshot{TakenAt: time.Now()}
	for id, price := range prices {
		symbol := symbols[id]
		if symbol == "" {
			symbol = id
		}
		snapshot.Assets = append(snapshot.Assets, models.AssetPrice{
			ID:           id,
			Symbol:       symbol,
			CurrentPrice: price,
		})
	}
	return snapshot
}

func TestApplyTradeBuy(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	snapshot := testSnapshot(map[string]float64{"bitcoin": 20000})

	next, trade, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snapshot)
	require.NoError(t, err)

	assert.Equal(t, 30000.0, next.CashBalance)
	holding := next.Holdings["bitcoin"]
	assert.Equal(t, "BTC", holding.Symbol)
	assert.Equal(t, 1.0, holding.Amount)
	assert.Equal(t, 20000.0, holding.AverageBuyPrice)

	assert.Equal(t, models.TradeSideBuy, trade.Type)
	assert.Equal(t, 20000.0, trade.Price)
	assert.Equal(t, 20000.0, trade.TotalValue)
	assert.NotEmpty(t, trade.ID)
}

func TestApplyTradeAverageCost(t *testing.T) {
	// Two buys at different prices blend into a volume-weighted average.
	prev := models.NewPortfolio("alice", 50000)
	snap1 := testSnapshot(map[string]float64{"bitcoin": 20000})
	snap2 := testSnapshot(map[string]float64{"bitcoin": 30000})

	mid, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snap1)
	require.NoError(t, err)
	next, _, err := applyTrade(mid, "bitcoin", models.TradeSideBuy, 1, snap2)
	require.NoError(t, err)

	holding := next.Holdings["bitcoin"]
	assert.Equal(t, 2.0, holding.Amount)
	assert.InDelta(t, 25000.0, holding.AverageBuyPrice, 1e-9)
	assert.InDelta(t, 0.0, next.CashBalance, 1e-9)
}

func TestApplyTradeSellPreservesBasis(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	buySnap := testSnapshot(map[string]float64{"bitcoin": 20000})
	sellSnap := testSnapshot(map[string]float64{"bitcoin": 40000})

	mid, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 2, buySnap)
	require.NoError(t, err)
	next, _, err := applyTrade(mid, "bitcoin", models.TradeSideSell, 1, sellSnap)
	require.NoError(t, err)

	holding := next.Holdings["bitcoin"]
	assert.Equal(t, 1.0, holding.Amount)
	assert.Equal(t, 20000.0, holding.AverageBuyPrice)
	assert.InDelta(t, 50000.0, next.CashBalance, 1e-9)
}

func TestApplyTradeFullSellClosesPosition(t *testing.T) {
	stop := 18000.0
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})

	mid, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snap)
	require.NoError(t, err)
	holding := mid.Holdings["bitcoin"]
	holding.StopLossPrice = &stop
	mid.Holdings["bitcoin"] = holding

	next, _, err := applyTrade(mid, "bitcoin", models.TradeSideSell, 1, snap)
	require.NoError(t, err)

	// Position and its stop-loss are both gone.
	_, held := next.Holdings["bitcoin"]
	assert.False(t, held)
	assert.InDelta(t, 50000.0, next.CashBalance, 1e-9)
}

func TestApplyTradeDustRemainderClosesPosition(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"ethereum": 3000})

	mid, _, err := applyTrade(prev, "ethereum", models.TradeSideBuy, 1, snap)
	require.NoError(t, err)

	// Leave a residue well under the dust threshold.
	next, _, err := applyTrade(mid, "ethereum", models.TradeSideSell, 1-1e-9, snap)
	require.NoError(t, err)

	_, held := next.Holdings["ethereum"]
	assert.False(t, held)
}

func TestApplyTradeConservation(t *testing.T) {
	// Cash delta and position value delta cancel exactly at snapshot prices.
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"solana": 185})

	next, trade, err := applyTrade(prev, "solana", models.TradeSideBuy, 10, snap)
	require.NoError(t, err)

	cashDelta := next.CashBalance - prev.CashBalance
	valueDelta := next.HoldingsValue(snap) - prev.HoldingsValue(snap)
	assert.InDelta(t, -trade.TotalValue, cashDelta, 1e-9)
	assert.InDelta(t, trade.TotalValue, valueDelta, 1e-9)
	assert.InDelta(t, prev.NetWorth(snap), next.NetWorth(snap), 1e-9)
}

func TestApplyTradeAppendsOneRecordEach(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})

	next, trade, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snap)
	require.NoError(t, err)

	require.Len(t, next.TradeHistory, len(prev.TradeHistory)+1)
	require.Len(t, next.PerformanceHistory, len(prev.PerformanceHistory)+1)

	last := next.TradeHistory[len(next.TradeHistory)-1]
	assert.Equal(t, trade.ID, last.ID)

	point := next.PerformanceHistory[len(next.PerformanceHistory)-1]
	assert.Equal(t, trade.Timestamp, point.Timestamp)
	assert.InDelta(t, next.NetWorth(snap), point.Value, 1e-9)
}

func TestApplyTradeRejections(t *testing.T) {
	prev := models.NewPortfolio("alice", 100)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})

	tests := []struct {
		name    string
		assetID string
		side    models.TradeSide
		amount  float64
		wantErr error
	}{
		{"unknown asset", "dogecoin", models.TradeSideBuy, 1, interfaces.ErrUnknownAsset},
		{"zero amount", "bitcoin", models.TradeSideBuy, 0, interfaces.ErrInvalidAmount},
		{"negative amount", "bitcoin", models.TradeSideBuy, -1, interfaces.ErrInvalidAmount},
		{"nan amount", "bitcoin", models.TradeSideBuy, math.NaN(), interfaces.ErrInvalidAmount},
		{"inf amount", "bitcoin", models.TradeSideBuy, math.Inf(1), interfaces.ErrInvalidAmount},
		{"insufficient funds", "bitcoin", models.TradeSideBuy, 1, interfaces.ErrInsufficientFunds},
		{"sell without position", "bitcoin", models.TradeSideSell, 1, interfaces.ErrInsufficientHoldings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, trade, err := applyTrade(prev, tt.assetID, tt.side, tt.amount, snap)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, next)
			assert.Nil(t, trade)
		})
	}
}

func TestApplyTradeSellMoreThanHeld(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})

	mid, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snap)
	require.NoError(t, err)

	_, _, err = applyTrade(mid, "bitcoin", models.TradeSideSell, 1.5, snap)
	require.ErrorIs(t, err, interfaces.ErrInsufficientHoldings)
}

func TestApplyTradeRejectionLeavesInputUntouched(t *testing.T) {
	prev := models.NewPortfolio("alice", 100)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})
	before := prev.Clone()

	_, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, snap)
	require.ErrorIs(t, err, interfaces.ErrInsufficientFunds)

	assert.Equal(t, before.CashBalance, prev.CashBalance)
	assert.Equal(t, before.Holdings, prev.Holdings)
	assert.Equal(t, len(before.TradeHistory), len(prev.TradeHistory))
	assert.Equal(t, len(before.PerformanceHistory), len(prev.PerformanceHistory))
}

func TestApplyTradeReopenedPositionResetsBasis(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	highSnap := testSnapshot(map[string]float64{"bitcoin": 30000})
	lowSnap := testSnapshot(map[string]float64{"bitcoin": 10000})

	p1, _, err := applyTrade(prev, "bitcoin", models.TradeSideBuy, 1, highSnap)
	require.NoError(t, err)
	p2, _, err := applyTrade(p1, "bitcoin", models.TradeSideSell, 1, highSnap)
	require.NoError(t, err)
	p3, _, err := applyTrade(p2, "bitcoin", models.TradeSideBuy, 1, lowSnap)
	require.NoError(t, err)

	// The old cost basis does not leak into the new position.
	assert.Equal(t, 10000.0, p3.Holdings["bitcoin"].AverageBuyPrice)
}

func TestApplyTradeInvalidSide(t *testing.T) {
	prev := models.NewPortfolio("alice", 50000)
	snap := testSnapshot(map[string]float64{"bitcoin": 20000})

	_, _, err := applyTrade(prev, "bitcoin", models.TradeSide("hold"), 1, snap)
	require.Error(t, err)
}
