// Package market maintains the current price snapshot for the tracked asset
// catalog. The snapshot is replaced whole on refresh; callers take a copy and
// use that one copy for an entire operation.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

// Service implements MarketService.
type Service struct {
	client interfaces.PriceClient
	logger *common.Logger

	mu       sync.RWMutex
	snapshot *models.PriceSnapshot
}

// NewService creates a market service. Until the first successful refresh the
// snapshot serves static fallback prices.
func NewService(client interfaces.PriceClient, logger *common.Logger) *Service {
	return &Service{
		client: client,
		logger: logger,
		snapshot: &models.PriceSnapshot{
			TakenAt: time.Now(),
			Assets:  append([]models.AssetPrice(nil), fallbackAssets...),
		},
	}
}

// Snapshot returns a copy of the current prices. The copy is stable for the
// caller even if a refresh lands mid-operation.
func (s *Service) Snapshot() *models.PriceSnapshot {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()
	return snapshot.Clone()
}

// Refresh fetches current prices for the catalog and swaps in a new snapshot.
// A failed fetch keeps the previous snapshot in place.
func (s *Service) Refresh(ctx context.Context) error {
	prices, err := s.client.GetSimplePrices(ctx, CatalogIDs())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Price refresh failed, keeping previous snapshot")
		return fmt.Errorf("price refresh failed: %w", err)
	}

	snapshot := &models.PriceSnapshot{TakenAt: time.Now()}
	for _, entry := range Catalog {
		price, ok := prices[entry.ID]
		if !ok {
			continue
		}
		snapshot.Assets = append(snapshot.Assets, models.AssetPrice{
			ID:           entry.ID,
			Symbol:       entry.Symbol,
			Name:         entry.Name,
			CurrentPrice: price.USD,
			Change24hPct: price.USD24hChange,
		})
	}

	if len(snapshot.Assets) == 0 {
		s.logger.Warn().Msg("Price refresh returned no tracked assets, keeping previous snapshot")
		return fmt.Errorf("price refresh returned no tracked assets")
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	s.logger.Debug().Int("assets", len(snapshot.Assets)).Msg("Price snapshot refreshed")
	return nil
}

// Compile-time check
var _ interfaces.MarketService = (*Service)(nil)
