// Package llm talks to hosted language models. Provider adapters share one
// request shape; decorators add audit logging, model failover and retry.
package llm

import (
	"context"
	"encoding/json"
)

// Provider generates one structured response per call.
type Provider interface {
	// Generate sends req and returns the model's output. When req.Schema
	// is set the output has been validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	System string

	// Messages is the conversation. Question generation sends a single
	// user message.
	Messages []Message

	// Schema, when set, asks the provider for JSON through its native
	// structured-output mode and validates the reply.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a JSON Schema the response must satisfy.
type Schema struct {
	// Name is sent as the schema name where the API wants one.
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the JSON reply with surrounding whitespace and Markdown
	// code fences removed.
	Content json.RawMessage
	Usage   Usage

	// Model is the model that served the request as reported by the API.
	Model string

	// StopReason is "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// resolveModel maps a friendly model name to a provider model ID. Unknown
// names are used as given.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
