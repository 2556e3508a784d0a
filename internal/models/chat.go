package models

// Chat message roles as exchanged with the assistant.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// ChatTurn is one prior turn of conversation, replayed for context.
// System turns (tool results) are filtered out before reaching the assistant.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatPrompt is the fully prepared request handed to the assistant client.
type ChatPrompt struct {
	Message   string
	ImageData []byte
	ImageMIME string
	Thinking  bool
	History   []ChatTurn
}

// GroundingSource is a web source the assistant grounded its answer on.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// AssistantReply is the decoded assistant response: answer text, grounding
// sources, and any tool invocations to route through the intent layer.
type AssistantReply struct {
	Text     string
	Sources  []GroundingSource
	Commands []Command
}

// ChatRequest is the HTTP API shape for a chat message. Image is an optional
// base64 data URL ("data:image/png;base64,....") or raw base64 payload.
type ChatRequest struct {
	Message  string     `json:"message"`
	Image    string     `json:"image,omitempty"`
	Thinking bool       `json:"thinking,omitempty"`
	History  []ChatTurn `json:"history,omitempty"`
}

// ChatResponse carries the assistant's answer plus the outcome strings of any
// tool calls it made, in execution order.
type ChatResponse struct {
	Text        string            `json:"text"`
	Sources     []GroundingSource `json:"sources,omitempty"`
	ToolResults []string          `json:"tool_results,omitempty"`
}
