// Package gemini provides a client for the Google Gemini API
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/cryptosage/sage/internal/common"
	"github.com/cryptosage/sage/internal/interfaces"
	"github.com/cryptosage/sage/internal/models"
)

const (
	DefaultModel          = "gemini-3-pro-preview"
	DefaultThinkingBudget = 32768
	defaultImageMIME      = "image/jpeg"

	systemInstructionText = `You are CryptoSage, an elite financial market analyst and trading assistant specializing in Cryptocurrency.
Your goal is to provide accurate, data-backed advice on whether to BUY, SELL, or HOLD specific assets based on current market conditions.

Capabilities:
1. Analyze market trends using real-time data (via Google Search).
2. Advanced Chart Analysis: precision detection of candlestick patterns (Doji, Hammer, Engulfing, Morning/Evening Star), chart formations (Head & Shoulders, Flags, Triangles, Wedges), and technical indicators (RSI divergence, MACD crossovers, Moving Averages) from user-uploaded images.
3. Perform deep reasoning for complex strategies when 'Thinking Mode' is active.
4. EXECUTE TRADES: You have direct access to the user's trading terminal. You can buy, sell, and set stop losses for Crypto (e.g., BTC, ETH) when explicitly instructed.

Guidelines:
- ALWAYS check for the latest news and prices using Google Search when asked about current market status.
- Be concise but insightful.
- Use technical terminology (RSI, MACD, Support/Resistance) where appropriate but explain it simply.
- IMAGE ANALYSIS: When an image is provided, you MUST perform a structured technical analysis:
  1. Identify the Asset and Timeframe (if visible).
  2. List key Support and Resistance levels.
  3. Detect specific Candlestick Patterns (e.g., "Bullish Engulfing detected at support").
  4. Identify Chart Patterns (e.g., "Ascending Triangle formation").
  5. Provide a specific directional bias (Bullish/Bearish/Neutral) based ONLY on the visual evidence.
- TRADING: If a user asks you to buy or sell, use the 'execute_trade' tool. If they ask to set a stop loss, use 'set_stop_loss'. ALWAYS confirm the action in text after calling the tool.
- Disclaimer: Always include a brief reminder that this is financial opinion, not guaranteed advice.`
)

// Client implements the AssistantClient interface
type Client struct {
	client *genai.Client
	model  string
	logger *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client: genaiClient,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// tradingTools declares the function calls the assistant may make, alongside
// Google Search grounding.
func tradingTools() []*genai.Tool {
	return []*genai.Tool{
		{GoogleSearch: &genai.GoogleSearch{}},
		{FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        models.CommandExecuteTrade,
				Description: "Execute a buy or sell order for a cryptocurrency.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"symbol": {
							Type:        genai.TypeString,
							Description: "The symbol of the asset (e.g., BTC, ETH).",
						},
						"action": {
							Type:        genai.TypeString,
							Description: "The action to perform: 'buy' or 'sell'.",
							Enum:        []string{"buy", "sell"},
						},
						"amount": {
							Type:        genai.TypeNumber,
							Description: "The amount of assets to trade.",
						},
					},
					Required: []string{"symbol", "action", "amount"},
				},
			},
			{
				Name:        models.CommandSetStopLoss,
				Description: "Set a stop loss price for a specific holding.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"symbol": {
							Type:        genai.TypeString,
							Description: "The symbol of the asset (e.g., BTC).",
						},
						"price": {
							Type:        genai.TypeNumber,
							Description: "The price at which to trigger the stop loss.",
						},
					},
					Required: []string{"symbol", "price"},
				},
			},
		}},
	}
}

// SendMessage sends one prepared prompt to the assistant and decodes the
// reply: answer text, grounding sources, and any tool calls.
func (c *Client) SendMessage(ctx context.Context, prompt *models.ChatPrompt) (*models.AssistantReply, error) {
	contents := make([]*genai.Content, 0, len(prompt.History)+1)
	for _, turn := range prompt.History {
		var role genai.Role = genai.RoleUser
		if turn.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	parts := []*genai.Part{}
	if len(prompt.ImageData) > 0 {
		mime := prompt.ImageMIME
		if mime == "" {
			mime = defaultImageMIME
		}
		parts = append(parts, genai.NewPartFromBytes(prompt.ImageData, mime))
	}
	parts = append(parts, genai.NewPartFromText(prompt.Message))
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstructionText, genai.RoleUser),
		Tools:             tradingTools(),
	}
	if prompt.Thinking {
		budget := int32(DefaultThinkingBudget)
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	c.logger.Debug().
		Str("model", c.model).
		Bool("thinking", prompt.Thinking).
		Bool("image", len(prompt.ImageData) > 0).
		Int("history", len(prompt.History)).
		Msg("Sending assistant message")

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("assistant request failed: %w", err)
	}

	return decodeReply(result), nil
}

// decodeReply flattens a generate-content response into an AssistantReply.
func decodeReply(result *genai.GenerateContentResponse) *models.AssistantReply {
	reply := &models.AssistantReply{}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return reply
	}
	candidate := result.Candidates[0]

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			reply.Text += part.Text
		}
		if part.FunctionCall != nil {
			reply.Commands = append(reply.Commands, models.Command{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" && chunk.Web.Title != "" {
				reply.Sources = append(reply.Sources, models.GroundingSource{
					URI:   chunk.Web.URI,
					Title: chunk.Web.Title,
				})
			}
		}
	}

	return reply
}

// Ensure Client implements AssistantClient
var _ interfaces.AssistantClient = (*Client)(nil)
