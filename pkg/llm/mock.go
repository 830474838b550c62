package llm

import (
	"context"
)

// MockReasoningClient is a configurable mock for testing reasoning-service
// consumers. Set the function fields to control behavior in tests.
type MockReasoningClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty result and nil error.
	CompleteFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	CompleteCalls int
	// Prompts records every prompt passed to Complete, in order.
	Prompts []string
}

// NewMockReasoningClient creates a new mock with sensible defaults.
func NewMockReasoningClient() *MockReasoningClient {
	return &MockReasoningClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Complete implements ReasoningClient.
func (m *MockReasoningClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error) {
	m.CompleteCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return &CompletionResult{}, nil
}

// GetModel implements ReasoningClient.
func (m *MockReasoningClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements ReasoningClient.
func (m *MockReasoningClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking.
func (m *MockReasoningClient) Reset() {
	m.CompleteCalls = 0
	m.Prompts = nil
}

// Ensure MockReasoningClient implements ReasoningClient at compile time.
var _ ReasoningClient = (*MockReasoningClient)(nil)
