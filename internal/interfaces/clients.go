package interfaces

import (
	"context"

	"github.com/cryptosage/sage/internal/models"
)

// PriceClient retrieves current market prices from an upstream source.
type PriceClient interface {
	// GetSimplePrices returns current USD price and 24h change per asset ID.
	GetSimplePrices(ctx context.Context, assetIDs []string) (map[string]models.SimplePrice, error)
}

// AssistantClient is the conversational assistant collaborator. The ledger
// core never talks to it directly — replies are decoded into Commands and
// routed through the intent layer.
type AssistantClient interface {
	SendMessage(ctx context.Context, prompt *models.ChatPrompt) (*models.AssistantReply, error)
}
