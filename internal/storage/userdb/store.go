// Package userdb implements PortfolioStore using BadgerHold.
// One portfolio record per identity, keyed by the normalized identity string.
package userdb

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

// Store implements interfaces.PortfolioStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore creates a new PortfolioStore backed by BadgerHold.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create userdb path %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open userdb at %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Msg("UserDB opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) GetPortfolio(_ context.Context, identity string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	if err := s.db.Get(identity, &portfolio); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("portfolio for '%s': %w", identity, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get portfolio for '%s': %w", identity, err)
	}
	return &portfolio, nil
}

func (s *Store) SavePortfolio(_ context.Context, portfolio *models.Portfolio) error {
	if portfolio.Identity == "" {
		return fmt.Errorf("portfolio identity is required")
	}
	portfolio.UpdatedAt = time.Now()
	if portfolio.CreatedAt.IsZero() {
		portfolio.CreatedAt = portfolio.UpdatedAt
	}

	if err := s.db.Upsert(portfolio.Identity, portfolio); err != nil {
		return fmt.Errorf("failed to save portfolio for '%s': %w", portfolio.Identity, err)
	}
	s.logger.Debug().Str("identity", portfolio.Identity).Msg("Portfolio saved")
	return nil
}

func (s *Store) DeletePortfolio(_ context.Context, identity string) error {
	err := s.db.Delete(identity, models.Portfolio{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete portfolio for '%s': %w", identity, err)
	}
	s.logger.Debug().Str("identity", identity).Msg("Portfolio deleted")
	return nil
}

func (s *Store) ListIdentities(_ context.Context) ([]string, error) {
	var portfolios []models.Portfolio
	if err := s.db.Find(&portfolios, nil); err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	identities := make([]string, len(portfolios))
	for i, p := range portfolios {
		identities[i] = p.Identity
	}
	return identities, nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ interfaces.PortfolioStore = (*Store)(nil)
