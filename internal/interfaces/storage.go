// Package interfaces defines service contracts for Sage
package interfaces

import (
	"context"
	"errors"

	"github.com/cryptosage/sage/internal/models"
)

// ErrNotFound is wrapped by storage implementations when a record is absent.
// Callers use errors.Is to distinguish "no record yet" from real failures.
var ErrNotFound = errors.New("not found")

// StorageManager coordinates the storage areas.
type StorageManager interface {
	PortfolioStore() PortfolioStore
	SystemKV() KeyValueStore

	Close() error
}

// PortfolioStore persists one portfolio per identity. Identity is an opaque
// key — the store imposes no format on it.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, identity string) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	DeletePortfolio(ctx context.Context, identity string) error
	ListIdentities(ctx context.Context) ([]string, error)
}

// KeyValueStore manages system-level key-value settings.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}
