package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/cryptosage/sage/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Market
	mux.HandleFunc("/api/prices", s.handlePrices)

	// Portfolio
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/portfolio/reset", s.handlePortfolioReset)
	mux.HandleFunc("/api/portfolio/performance/chart", s.handlePerformanceChart)

	// Trading
	mux.HandleFunc("/api/trade", s.handleTrade)
	mux.HandleFunc("/api/stoploss", s.handleStopLoss)

	// Assistant
	mux.HandleFunc("/api/chat", s.handleChat)

	// Identity convenience
	mux.HandleFunc("/api/identity/last", s.handleLastIdentity)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
		"go_version": runtime.Version(),
	})
}

// handleConfig handles GET /api/config — non-sensitive runtime configuration.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	config := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":      config.Environment,
		"starting_balance": config.Ledger.StartingBalance,
		"refresh_interval": config.Clients.CoinGecko.RefreshInterval,
		"assistant":        s.app.ChatService != nil,
		"model":            config.Clients.Gemini.Model,
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
