// Package storage provides the top-level StorageManager that coordinates
// the 2 storage areas: internaldb (system KV) and userdb (portfolios).
package storage

import (
	"fmt"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/storage/internaldb"
	"github.com/cryptosage/sage/internal/storage/userdb"
)

// Manager implements interfaces.StorageManager using 2 storage areas.
type Manager struct {
	internal *internaldb.Store
	user     *userdb.Store
	logger   *common.Logger
}

// NewManager creates a new StorageManager with the 2 storage areas.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	internalStore, err := internaldb.NewStore(logger, config.Storage.Internal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create internal store: %w", err)
	}

	userStore, err := userdb.NewStore(logger, config.Storage.User.Path)
	if err != nil {
		internalStore.Close()
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	logger.Info().
		Str("internal", config.Storage.Internal.Path).
		Str("user", config.Storage.User.Path).
		Msg("Storage manager initialized (2 areas)")

	return &Manager{
		internal: internalStore,
		user:     userStore,
		logger:   logger,
	}, nil
}

func (m *Manager) PortfolioStore() interfaces.PortfolioStore {
	return m.user
}

func (m *Manager) SystemKV() interfaces.KeyValueStore {
	return m.internal
}

func (m *Manager) Close() error {
	var firstErr error
	if err := m.internal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.user.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
