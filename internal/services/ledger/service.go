// Package ledger implements the portfolio ledger and simulated-trade
// execution engine. The in-memory portfolio is the single source of truth
// for a session; every mutation reads the current state, computes the next
// state on a copy, and publishes it whole under a per-identity lock.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

// Service implements LedgerService.
type Service struct {
	storage         interfaces.StorageManager
	logger          *common.Logger
	startingBalance float64

	mu       sync.Mutex
	sessions map[string]*session
}

// session serializes all mutations for one identity. The portfolio pointer
// is only ever replaced wholesale, never written through.
type session struct {
	mu        sync.Mutex
	portfolio *models.Portfolio
}

// NewService creates a new ledger service.
func NewService(storage interfaces.StorageManager, startingBalance float64, logger *common.Logger) *Service {
	if startingBalance <= 0 {
		startingBalance = 50000
	}
	return &Service{
		storage:         storage,
		logger:          logger,
		startingBalance: startingBalance,
		sessions:        make(map[string]*session),
	}
}

// sessionFor returns the mutation session for an identity, creating it on
// first use.
func (s *Service) sessionFor(identity string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[identity]
	if !ok {
		sess = &session{}
		s.sessions[identity] = sess
	}
	return sess
}

// load returns the current portfolio for a locked session, reading from
// storage on first access and seeding a fresh portfolio when none exists.
// Saved portfolios without a performance history (legacy saves) get a single
// synthesized point rather than failing.
func (s *Service) load(ctx context.Context, identity string, sess *session) (*models.Portfolio, error) {
	if sess.portfolio != nil {
		return sess.portfolio, nil
	}

	portfolio, err := s.storage.PortfolioStore().GetPortfolio(ctx, identity)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		portfolio = models.NewPortfolio(identity, s.startingBalance)
		s.persist(ctx, portfolio)
		s.logger.Info().Str("identity", identity).Float64("balance", s.startingBalance).Msg("Portfolio seeded")
	} else {
		migratePortfolio(portfolio)
	}

	sess.portfolio = portfolio
	return portfolio, nil
}

// migratePortfolio fills gaps in portfolios saved by older versions.
func migratePortfolio(p *models.Portfolio) {
	if p.Holdings == nil {
		p.Holdings = make(map[string]models.Holding)
	}
	if p.TradeHistory == nil {
		p.TradeHistory = []models.Trade{}
	}
	if len(p.PerformanceHistory) == 0 {
		p.PerformanceHistory = []models.PerformancePoint{
			{Timestamp: time.Now(), Value: p.CashBalance},
		}
	}
}

// persist saves the portfolio, fire-and-forget: a save failure is logged but
// never rolls back the in-memory state, which stays authoritative for the
// session.
func (s *Service) persist(ctx context.Context, portfolio *models.Portfolio) {
	if err := s.storage.PortfolioStore().SavePortfolio(ctx, portfolio); err != nil {
		s.logger.Error().Err(err).Str("identity", portfolio.Identity).Msg("Failed to persist portfolio")
	}
}

// GetPortfolio returns a snapshot copy of the identity's portfolio.
func (s *Service) GetPortfolio(ctx context.Context, identity string) (*models.Portfolio, error) {
	sess := s.sessionFor(identity)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	portfolio, err := s.load(ctx, identity, sess)
	if err != nil {
		return nil, err
	}
	return portfolio.Clone(), nil
}

// ExecuteTrade validates and applies one buy/sell as an indivisible unit:
// read current state, compute next state, publish, persist. A rejection
// leaves the published state untouched.
func (s *Service) ExecuteTrade(ctx context.Context, identity, assetID string, side models.TradeSide, amount float64, snapshot *models.PriceSnapshot) (*models.Trade, error) {
	sess := s.sessionFor(identity)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	prev, err := s.load(ctx, identity, sess)
	if err != nil {
		return nil, err
	}

	next, trade, err := applyTrade(prev, assetID, side, amount, snapshot)
	if err != nil {
		return nil, err
	}

	sess.portfolio = next
	s.persist(ctx, next)

	s.logger.Info().
		Str("identity", identity).
		Str("side", string(side)).
		Str("asset", assetID).
		Float64("amount", amount).
		Float64("price", trade.Price).
		Float64("cash", next.CashBalance).
		Msg("Trade executed")

	return trade, nil
}

// SetStopLoss sets or clears the stop-loss directive on a holding. The
// directive is advisory storage only — nothing evaluates or triggers it.
// A missing holding is a no-op (returns false); a position is never created
// just to carry a directive.
func (s *Service) SetStopLoss(ctx context.Context, identity, assetID string, price *float64) (bool, error) {
	sess := s.sessionFor(identity)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	prev, err := s.load(ctx, identity, sess)
	if err != nil {
		return false, err
	}

	if _, held := prev.Holdings[assetID]; !held {
		return false, nil
	}

	next := prev.Clone()
	holding := next.Holdings[assetID]
	holding.StopLossPrice = price
	next.Holdings[assetID] = holding
	next.UpdatedAt = time.Now()

	sess.portfolio = next
	s.persist(ctx, next)

	event := s.logger.Info().Str("identity", identity).Str("asset", assetID)
	if price != nil {
		event.Float64("price", *price).Msg("Stop loss set")
	} else {
		event.Msg("Stop loss cleared")
	}

	return true, nil
}

// ResetPortfolio replaces the portfolio with a freshly seeded instance.
func (s *Service) ResetPortfolio(ctx context.Context, identity string) (*models.Portfolio, error) {
	sess := s.sessionFor(identity)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	portfolio := models.NewPortfolio(identity, s.startingBalance)
	sess.portfolio = portfolio
	s.persist(ctx, portfolio)

	s.logger.Info().Str("identity", identity).Msg("Portfolio reset")
	return portfolio.Clone(), nil
}

// Compile-time check
var _ interfaces.LedgerService = (*Service)(nil)
