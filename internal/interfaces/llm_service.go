package interfaces

import (
	"context"
)

// GenerateRequest is a provider-agnostic text generation request.
// Model accepts an optional provider prefix ("claude/...", "gemini/...");
// an empty model uses the configured default provider and model.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
	MaxTokens         int
	Temperature       float32
}

// LLMService defines the interface for text generation. Implementations
// route requests to the provider identified by the model string and must
// bound every call with a timeout.
type LLMService interface {
	// Generate produces text for the given request. Provider and timeout
	// errors are returned as-is; callers decide whether they are fatal.
	Generate(ctx context.Context, request *GenerateRequest) (string, error)

	// Close releases provider clients and connections
	Close() error
}
