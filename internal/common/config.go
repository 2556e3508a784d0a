// Package common provides shared utilities for Sage
package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/cryptosage/sage/internal/interfaces"
)

// Config holds all configuration for Sage
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Ledger      LedgerConfig  `toml:"ledger"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds path configuration for the 2 storage areas.
type StorageConfig struct {
	Internal AreaConfig `toml:"internal"` // System KV (BadgerHold)
	User     AreaConfig `toml:"user"`     // Per-identity portfolios (BadgerHold)
}

// AreaConfig holds path configuration for a storage area.
type AreaConfig struct {
	Path string `toml:"path"`
}

// LedgerConfig holds simulated-trading ledger configuration.
type LedgerConfig struct {
	StartingBalance float64 `toml:"starting_balance"` // Seeded quote-currency balance for fresh portfolios
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	Gemini    GeminiConfig    `toml:"gemini"`
}

// CoinGeckoConfig holds CoinGecko API configuration
type CoinGeckoConfig struct {
	BaseURL         string `toml:"base_url"`
	RateLimit       int    `toml:"rate_limit"`
	Timeout         string `toml:"timeout"`
	RefreshInterval string `toml:"refresh_interval"`
}

// GetTimeout parses and returns the timeout duration
func (c *CoinGeckoConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRefreshInterval parses and returns the price refresh interval
func (c *CoinGeckoConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Internal: AreaConfig{Path: "data/internal"},
			User:     AreaConfig{Path: "data/user"},
		},
		Ledger: LedgerConfig{
			StartingBalance: 50000,
		},
		Clients: ClientsConfig{
			CoinGecko: CoinGeckoConfig{
				BaseURL:         "https://api.coingecko.com/api/v3",
				RateLimit:       5,
				Timeout:         "30s",
				RefreshInterval: "60s",
			},
			Gemini: GeminiConfig{
				Model: "gemini-3-pro-preview",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if config.Ledger.StartingBalance <= 0 {
		config.Ledger.StartingBalance = 50000
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SAGE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SAGE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SAGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SAGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("SAGE_DATA_PATH"); path != "" {
		config.Storage.Internal.Path = filepath.Join(path, "internal")
		config.Storage.User.Path = filepath.Join(path, "user")
	}

	if balance := os.Getenv("SAGE_STARTING_BALANCE"); balance != "" {
		if b, err := strconv.ParseFloat(balance, 64); err == nil && b > 0 {
			config.Ledger.StartingBalance = b
		}
	}

	if key := os.Getenv("SAGE_GEMINI_API_KEY"); key != "" {
		config.Clients.Gemini.APIKey = key
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// ResolveAPIKey resolves an API key from environment, system KV, or fallback
func ResolveAPIKey(ctx context.Context, store interfaces.KeyValueStore, name string, fallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key": {"GEMINI_API_KEY", "SAGE_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	// Environment variables first (highest priority)
	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// System KV (medium priority)
	if store != nil {
		if apiKey, err := store.Get(ctx, name); err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or store", name)
}
