// Package app wires configuration, storage, clients, and services into a
// single initialized application core shared by the server binary and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cryptosage/sage/internal/clients/coingecko"
	"github.com/cryptosage/sage/internal/clients/gemini"
	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/services/chat"
	"github.com/cryptosage/sage/internal/services/intent"
	"github.com/cryptosage/sage/internal/services/ledger"
	"github.com/cryptosage/sage/internal/services/market"
	"github.com/cryptosage/sage/internal/storage"
)

// App holds all initialized services and clients.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Storage       interfaces.StorageManager
	PriceClient   interfaces.PriceClient
	MarketService interfaces.MarketService
	LedgerService interfaces.LedgerService
	IntentRouter  *intent.Router
	ChatService   interfaces.ChatService // nil when no assistant API key is configured
	StartupTime   time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services from configuration.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, SAGE_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("SAGE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "sage.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/sage.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	priceClient := coingecko.NewClient(
		coingecko.WithBaseURL(config.Clients.CoinGecko.BaseURL),
		coingecko.WithRateLimit(config.Clients.CoinGecko.RateLimit),
		coingecko.WithTimeout(config.Clients.CoinGecko.GetTimeout()),
		coingecko.WithLogger(logger),
	)

	marketService := market.NewService(priceClient, logger)
	ledgerService := ledger.NewService(storageManager, config.Ledger.StartingBalance, logger)
	intentRouter := intent.NewRouter(ledgerService, logger)

	a := &App{
		Config:        config,
		Logger:        logger,
		Storage:       storageManager,
		PriceClient:   priceClient,
		MarketService: marketService,
		LedgerService: ledgerService,
		IntentRouter:  intentRouter,
		StartupTime:   startupStart,
	}

	geminiKey, err := common.ResolveAPIKey(ctx, storageManager.SystemKV(), "gemini_api_key", config.Clients.Gemini.APIKey)
	if err != nil {
		logger.Warn().Msg("Gemini API key not configured - assistant chat will be unavailable")
	}
	if geminiKey != "" {
		assistantClient, err := gemini.NewClient(ctx, geminiKey,
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithLogger(logger),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client")
		} else {
			a.ChatService = chat.NewService(assistantClient, ledgerService, marketService, intentRouter, logger)
		}
	}

	// First price fetch, so trading starts against live prices rather than
	// the static fallback set.
	refreshCtx, cancel := context.WithTimeout(ctx, config.Clients.CoinGecko.GetTimeout())
	if err := marketService.Refresh(refreshCtx); err != nil {
		logger.Warn().Err(err).Msg("Initial price fetch failed - serving fallback prices")
	}
	cancel()

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartPriceScheduler launches the background price refresh goroutine.
func (a *App) StartPriceScheduler() {
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	a.schedulerCancel = schedulerCancel
	go startPriceScheduler(schedulerCtx, a.MarketService, a.Logger, a.Config.Clients.CoinGecko.GetRefreshInterval())
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
