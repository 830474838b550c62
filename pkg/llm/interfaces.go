// Package llm provides clients for the external reasoning service.
package llm

import (
	"context"
)

// CompletionResult is the content of one completion with usage stats.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ReasoningClient is the capability boundary to the reasoning service: it
// produces free-text completions from a prompt plus system context, or fails.
// Everything downstream of validation is deterministic; nothing upstream of
// this interface is trusted.
// Use this interface for dependency injection to enable mocking in tests.
type ReasoningClient interface {
	// Complete generates a completion for the prompt.
	Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy ReasoningClient at compile time.
var (
	_ ReasoningClient = (*OpenAIClient)(nil)
	_ ReasoningClient = (*AnthropicClient)(nil)
)
