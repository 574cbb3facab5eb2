package domain

import "context"

// Generator is the single-call text generation contract shared by every stage.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// GenerationRequest is one chat-style generation call.
// Zero Temperature and MaxTokens mean "use the provider default".
type GenerationRequest struct {
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   int
	// Model overrides the provider's configured model when non-empty.
	Model string
}

// GenerationResult carries the generated text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Temperature returns a pointer for GenerationRequest.Temperature.
func Temperature(t float32) *float32 { return &t }
