package ports

import "context"

// SynthesisRequest carries one prompt for the language-synthesis oracle.
type SynthesisRequest struct {
	System      string         `json:"system,omitempty"`
	Prompt      string         `json:"prompt"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SynthesisResponse is the oracle's reply.
type SynthesisResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Synthesizer is the language-synthesis oracle capability. It is passed into
// the orchestration loop's construction, never discovered through ambient
// framework state.
type Synthesizer interface {
	Complete(ctx context.Context, req SynthesisRequest) (*SynthesisResponse, error)
	Model() string
}
