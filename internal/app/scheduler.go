package app

import (
	"context"
	"time"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
)

// startPriceScheduler refreshes the price snapshot on a fixed interval.
// A failed refresh keeps the previous snapshot, so trading continues against
// the last known prices.
func startPriceScheduler(ctx context.Context, marketService interfaces.MarketService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Price scheduler: stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if err := marketService.Refresh(ctx); err != nil {
				continue
			}
			logger.Debug().Dur("elapsed", time.Since(start)).Msg("Price refresh: complete")
		}
	}
}
