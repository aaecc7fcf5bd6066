package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds all LLM provider configuration. Fields carry env tags and are
// parsed under the GQUIZ_LLM_ prefix by the config package.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "gemini", "openai", "anthropic", "openrouter", "mock".
	// Empty means discover from the available API keys.
	Provider string `env:"PROVIDER"`

	Gemini     GeminiConfig     `envPrefix:"GEMINI_"`
	OpenAI     OpenAIConfig     `envPrefix:"OPENAI_"`
	Anthropic  AnthropicConfig  `envPrefix:"ANTHROPIC_"`
	OpenRouter OpenRouterConfig `envPrefix:"OPENROUTER_"`
	Retry      RetryConfig      `envPrefix:"RETRY_"`

	// Timeout is the maximum duration for a single LLM request
	// (including retries) made outside the serving path.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `env:"API_KEY"`

	// Models is the failover order. The first model is tried first; an
	// unavailable model falls through to the next one.
	Models []string `env:"MODELS" envSeparator:"," envDefault:"gemini-flash,gemini-2.0-flash,gemini-flash-lite"`
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"gpt-4o-mini"`
	BaseURL string `env:"BASE_URL"` // Optional. Override for compatible APIs.
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL" envDefault:"claude-haiku"`
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"google/gemini-2.0-flash-001"`
	BaseURL string `env:"BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"2"`
	InitialWait time.Duration `env:"INITIAL_WAIT" envDefault:"500ms"`
	MaxWait     time.Duration `env:"MAX_WAIT" envDefault:"4s"`
	Multiplier  float64       `env:"MULTIPLIER" envDefault:"2"`
}

// DefaultConfig returns a Config with the same defaults as the env tags.
func DefaultConfig() Config {
	return Config{
		Gemini: GeminiConfig{
			Models: []string{"gemini-flash", "gemini-2.0-flash", "gemini-flash-lite"},
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenRouter: OpenRouterConfig{
			Model:   "google/gemini-2.0-flash-001",
			BaseURL: defaultOpenRouterBaseURL,
		},
		Retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     4 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 30 * time.Second,
	}
}

// Discover fills missing API keys from the standard provider variables
// (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY) and,
// when Provider is empty, selects the first provider with a key in that
// order. It reports whether a provider is selected. A nil getenv uses
// os.Getenv.
func (c *Config) Discover(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}

	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = getenv(name)
		}
	}
	fill(&c.Gemini.APIKey, "GEMINI_API_KEY")
	fill(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	fill(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")

	if c.Provider != "" {
		return true
	}
	switch {
	case c.Gemini.APIKey != "":
		c.Provider = "gemini"
	case c.OpenAI.APIKey != "":
		c.Provider = "openai"
	case c.Anthropic.APIKey != "":
		c.Provider = "anthropic"
	case c.OpenRouter.APIKey != "":
		c.Provider = "openrouter"
	default:
		return false
	}
	return true
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		if len(c.Gemini.Models) == 0 {
			return fmt.Errorf("GQUIZ_LLM_GEMINI_MODELS must list at least one model")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required for the openrouter provider")
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
