// Package chat orchestrates one assistant round-trip: portfolio context in,
// assistant reply out, and any tool calls executed through the intent router.
package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
	"github.com/cryptosage/sage/internal/services/intent"
)

// Service implements ChatService.
type Service struct {
	assistant interfaces.AssistantClient
	ledger    interfaces.LedgerService
	market    interfaces.MarketService
	router    *intent.Router
	logger    *common.Logger
}

// NewService creates a chat service.
func NewService(assistant interfaces.AssistantClient, ledger interfaces.LedgerService, market interfaces.MarketService, router *intent.Router, logger *common.Logger) *Service {
	return &Service{
		assistant: assistant,
		ledger:    ledger,
		market:    market,
		router:    router,
		logger:    logger,
	}
}

// SendMessage sends one user message to the assistant with current portfolio
// context prepended, then executes any tool calls the assistant made. One
// price snapshot is taken up front and used for the whole round-trip.
func (s *Service) SendMessage(ctx context.Context, identity string, req *models.ChatRequest) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" && req.Image == "" {
		return nil, fmt.Errorf("message is required")
	}

	snapshot := s.market.Snapshot()

	portfolio, err := s.ledger.GetPortfolio(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	prompt := &models.ChatPrompt{
		Message:  buildContextMessage(portfolio, snapshot, req.Message),
		Thinking: req.Thinking,
		History:  filterHistory(req.History),
	}
	if req.Image != "" {
		data, mime, err := decodeImage(req.Image)
		if err != nil {
			return nil, fmt.Errorf("invalid image payload: %w", err)
		}
		prompt.ImageData = data
		prompt.ImageMIME = mime
	}

	reply, err := s.assistant.SendMessage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	response := &models.ChatResponse{
		Text:    reply.Text,
		Sources: reply.Sources,
	}

	for _, cmd := range reply.Commands {
		result, err := s.router.Dispatch(ctx, identity, cmd, snapshot)
		if err != nil {
			s.logger.Error().Err(err).Str("command", cmd.Name).Msg("Assistant command failed")
			result = "The trading terminal reported an internal error."
		}
		if result != "" {
			response.ToolResults = append(response.ToolResults, result)
		}
	}

	return response, nil
}

// buildContextMessage prepends a plain-text summary of the portfolio so the
// assistant answers against the user's actual positions.
func buildContextMessage(portfolio *models.Portfolio, snapshot *models.PriceSnapshot, message string) string {
	var sb strings.Builder
	sb.WriteString("[Portfolio Context]\n")
	fmt.Fprintf(&sb, "Cash balance: $%.2f\n", portfolio.CashBalance)

	if len(portfolio.Holdings) == 0 {
		sb.WriteString("Holdings: none\n")
	} else {
		sb.WriteString("Holdings:\n")
		ids := make([]string, 0, len(portfolio.Holdings))
		for id := range portfolio.Holdings {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			h := portfolio.Holdings[id]
			fmt.Fprintf(&sb, "- %s: %g units, avg buy $%.2f", h.Symbol, h.Amount, h.AverageBuyPrice)
			if price, ok := snapshot.Price(id); ok {
				fmt.Fprintf(&sb, ", now $%.2f", price)
			}
			if h.StopLossPrice != nil {
				fmt.Fprintf(&sb, ", stop-loss $%.2f", *h.StopLossPrice)
			}
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Net worth: $%.2f\n\n", portfolio.NetWorth(snapshot))
	sb.WriteString(message)
	return sb.String()
}

// filterHistory drops system turns (tool results) before replaying the
// conversation to the assistant.
func filterHistory(history []models.ChatTurn) []models.ChatTurn {
	filtered := make([]models.ChatTurn, 0, len(history))
	for _, turn := range history {
		if turn.Role == models.RoleUser || turn.Role == models.RoleModel {
			filtered = append(filtered, turn)
		}
	}
	return filtered
}

// decodeImage accepts a base64 data URL ("data:image/png;base64,....") or a
// raw base64 payload and returns the decoded bytes and MIME type.
func decodeImage(payload string) ([]byte, string, error) {
	mime := "image/jpeg"
	data := payload

	if strings.HasPrefix(payload, "data:") {
		rest := strings.TrimPrefix(payload, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		if rest[:semi] != "" {
			mime = rest[:semi]
		}
		data = rest[semi+len(";base64,"):]
	} else if idx := strings.Index(payload, ","); idx >= 0 {
		data = payload[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("base64 decode failed: %w", err)
	}
	if len(decoded) == 0 {
		return nil, "", fmt.Errorf("empty image payload")
	}
	return decoded, mime, nil
}

// Compile-time check
var _ interfaces.ChatService = (*Service)(nil)
