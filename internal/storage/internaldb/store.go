// Package internaldb implements the system key-value store using BadgerHold.
package internaldb

import (
	"context"
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
)

// KVEntry represents a key-value pair stored in BadgerDB.
type KVEntry struct {
	Key   string `badgerhold:"key"`
	Value string
}

// Store implements interfaces.KeyValueStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore creates a new system KV store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create internaldb path %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open internaldb at %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Msg("InternalDB opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	var entry KVEntry
	if err := s.db.Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", fmt.Errorf("key '%s': %w", key, interfaces.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get key '%s': %w", key, err)
	}
	return entry.Value, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value}
	if err := s.db.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Delete(key, KVEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

func (s *Store) GetAll(_ context.Context) (map[string]string, error) {
	var entries []KVEntry
	if err := s.db.Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to get all keys: %w", err)
	}
	result := make(map[string]string, len(entries))
	for _, entry := range entries {
		result[entry.Key] = entry.Value
	}
	return result, nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ interfaces.KeyValueStore = (*Store)(nil)
