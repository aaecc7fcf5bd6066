package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/store"
)

// NewProvider creates a Provider from configuration. Gemini models are
// chained for failover in configured order. Each base provider is wrapped
// with logging, and the whole chain with retry:
// caller → retry → failover → logging → base.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, logger zerolog.Logger) (Provider, error) {
	var bases []Provider

	switch cfg.Provider {
	case "gemini":
		ps, err := NewGeminiProviders(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini provider: %w", err)
		}
		bases = ps
	case "anthropic":
		p, err := NewAnthropicProvider(cfg.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("initializing anthropic provider: %w", err)
		}
		bases = append(bases, p)
	case "openai":
		p, err := NewOpenAIProvider(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("initializing openai provider: %w", err)
		}
		bases = append(bases, p)
	case "openrouter":
		p, err := NewOpenRouterProvider(cfg.OpenRouter)
		if err != nil {
			return nil, fmt.Errorf("initializing openrouter provider: %w", err)
		}
		bases = append(bases, p)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}

	logged := make([]Provider, len(bases))
	for i, b := range bases {
		logged[i] = WithLogging(b, cfg.Provider, eventRepo, logger)
	}
	chain, err := WithFailover(logger, logged...)
	if err != nil {
		return nil, err
	}
	return WithRetry(chain, cfg.Retry), nil
}
