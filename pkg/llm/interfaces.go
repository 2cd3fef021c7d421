// Package llm provides the model clients used for query generation and narration.
package llm

import (
	"context"
	"time"
)

// LLMClient is the narrow request/response contract the pipeline relies on:
// prompt in, raw text out. Any returned error means the model was unavailable
// for this call.
type LLMClient interface {
	// GenerateResponse generates a completion for the prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// GenerateResponseResult holds a completion and its token usage. Model is the
// model that answered as reported by the provider.
type GenerateResponseResult struct {
	Content          string
	Model            string
	Elapsed          time.Duration
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Ensure clients implement LLMClient at compile time.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*GuardedClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)
