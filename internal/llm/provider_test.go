package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestMockProvider_Queue(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(testMCQ), Usage: Usage{InputTokens: 10, OutputTokens: 5}},
		MockResponse{Err: &ErrRateLimit{Window: "day", Err: errors.New("429")}},
	)

	resp, err := mock.Generate(context.Background(), Request{System: "sys"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != testMCQ || resp.Usage.InputTokens != 10 || resp.Model != "mock" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) || rl.Window != "day" {
		t.Fatalf("expected daily ErrRateLimit, got: %v", err)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("empty queue should be unavailable, got: %T", err)
	}

	if mock.CallCount() != 3 || mock.Calls[0].System != "sys" {
		t.Fatalf("calls = %+v", mock.Calls)
	}
}

func TestMockProvider_DelayHonorsContext(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`), Delay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := mock.Generate(ctx, Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
}

func TestFromStatus(t *testing.T) {
	err := fromStatus(http.StatusTooManyRequests, "Quota exceeded for metric GenerateRequestsPerDayPerProject", errors.New("boom"))
	var rl *ErrRateLimit
	if !errors.As(err, &rl) || rl.Window != "day" {
		t.Fatalf("expected daily rate limit, got: %v", err)
	}

	err = fromStatus(http.StatusServiceUnavailable, "overloaded", errors.New("boom"))
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) || unavail.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable 503, got: %v", err)
	}
	if got := unavail.Error(); got != "LLM provider unavailable (HTTP 503): boom" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}

	ctx = WithPurpose(ctx, "question-gen")
	if p := PurposeFrom(ctx); p != "question-gen" {
		t.Fatalf("expected 'question-gen', got %q", p)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "anthropic without key",
			cfg:     Config{Provider: "anthropic"},
			wantErr: true,
		},
		{
			name:    "anthropic with key",
			cfg:     Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}},
			wantErr: false,
		},
		{
			name:    "openai without key",
			cfg:     Config{Provider: "openai"},
			wantErr: true,
		},
		{
			name:    "openai with key",
			cfg:     Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test"}},
			wantErr: false,
		},
		{
			name:    "gemini without key",
			cfg:     Config{Provider: "gemini", Gemini: GeminiConfig{Models: []string{"gemini-flash"}}},
			wantErr: true,
		},
		{
			name:    "gemini without models",
			cfg:     Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "key"}},
			wantErr: true,
		},
		{
			name:    "gemini with key and models",
			cfg:     Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "key", Models: []string{"gemini-flash"}}},
			wantErr: false,
		},
		{
			name:    "openrouter without key",
			cfg:     Config{Provider: "openrouter"},
			wantErr: true,
		},
		{
			name:    "mock needs no key",
			cfg:     Config{Provider: "mock"},
			wantErr: false,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Discover(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	t.Run("gemini preferred", func(t *testing.T) {
		cfg := DefaultConfig()
		ok := cfg.Discover(env(map[string]string{
			"GEMINI_API_KEY": "g",
			"OPENAI_API_KEY": "o",
		}))
		if !ok || cfg.Provider != "gemini" {
			t.Fatalf("Discover() = %v, provider %q", ok, cfg.Provider)
		}
		if cfg.Gemini.APIKey != "g" || cfg.OpenAI.APIKey != "o" {
			t.Fatalf("keys not filled: %+v", cfg)
		}
	})

	t.Run("falls through to openrouter", func(t *testing.T) {
		cfg := DefaultConfig()
		if !cfg.Discover(env(map[string]string{"OPENROUTER_API_KEY": "r"})) {
			t.Fatal("expected a provider")
		}
		if cfg.Provider != "openrouter" {
			t.Fatalf("provider = %q, want openrouter", cfg.Provider)
		}
	})

	t.Run("explicit provider kept", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "mock"
		if !cfg.Discover(env(map[string]string{"GEMINI_API_KEY": "g"})) {
			t.Fatal("expected a provider")
		}
		if cfg.Provider != "mock" {
			t.Fatalf("provider = %q, want mock", cfg.Provider)
		}
	})

	t.Run("configured key not overwritten", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "from-config"
		cfg.Discover(env(map[string]string{"GEMINI_API_KEY": "from-env"}))
		if cfg.Gemini.APIKey != "from-config" {
			t.Fatalf("key = %q", cfg.Gemini.APIKey)
		}
	})

	t.Run("no keys", func(t *testing.T) {
		cfg := DefaultConfig()
		if cfg.Discover(env(nil)) {
			t.Fatal("expected no provider")
		}
		if cfg.Provider != "" {
			t.Fatalf("provider = %q, want empty", cfg.Provider)
		}
	})
}
