package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewClient creates a reasoning client for the configured provider.
// Returns the ReasoningClient interface to enable dependency injection of
// mocks in tests.
func NewClient(cfg *Config, logger *zap.Logger) (ReasoningClient, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
	}
}
