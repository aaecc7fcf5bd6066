package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// geminiModels maps friendly names to Gemini model IDs.
var geminiModels = map[string]string{
	"gemini-flash":      "gemini-2.5-flash",
	"gemini-flash-lite": "gemini-2.5-flash-lite",
	"gemini-pro":        "gemini-2.5-pro",
}

// GeminiProvider implements Provider for one Gemini model.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiProviders creates one provider per configured model, in failover
// order, sharing a single client.
func NewGeminiProviders(ctx context.Context, cfg GeminiConfig) ([]Provider, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("at least one gemini model is required")
	}
	client, err := newGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cfg.Models))
	var out []Provider
	for _, name := range cfg.Models {
		model := GeminiModelID(name)
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		out = append(out, &GeminiProvider{client: client, model: model})
	}
	return out, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
	}

	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = buildGeminiSchema(req.Schema.Definition)
	}

	contents := buildGeminiContents(req.Messages)

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, mapGeminiError(err)
	}

	text := result.Text()
	stop := mapGeminiStopReason(result)
	if stop == "max_tokens" {
		return nil, &ErrMaxTokensExceeded{Content: json.RawMessage(text)}
	}
	content, err := decodeContent(req.Schema, text)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Content:    content,
		Model:      p.model,
		StopReason: stop,
	}

	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

func (p *GeminiProvider) ModelID() string {
	return p.model
}

// GeminiModelID resolves a friendly name such as "gemini-flash" to a model
// ID. Unknown names are returned as given.
func GeminiModelID(name string) string {
	return resolveModel(strings.TrimSpace(name), geminiModels)
}

// ListGeminiModels returns the models that support content generation,
// newest first.
func ListGeminiModels(ctx context.Context, apiKey string) ([]string, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var names []string
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, mapGeminiError(err)
		}
		if !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return RankGeminiModels(names), nil
}

// RankGeminiModels orders model names newest first: higher version, then
// pro over flash over lite, then name.
func RankGeminiModels(names []string) []string {
	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int {
		va, vb := geminiVersion(a), geminiVersion(b)
		if va != vb {
			if va > vb {
				return -1
			}
			return 1
		}
		if ta, tb := geminiTier(a), geminiTier(b); ta != tb {
			return tb - ta
		}
		return strings.Compare(a, b)
	})
	return out
}

// geminiVersion parses "gemini-2.5-flash" as 2.5. Unparseable names sort last.
func geminiVersion(name string) float64 {
	parts := strings.Split(strings.TrimPrefix(name, "models/"), "-")
	if len(parts) < 2 || parts[0] != "gemini" {
		return 0
	}
	v, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func geminiTier(name string) int {
	switch {
	case strings.Contains(name, "pro"):
		return 3
	case strings.Contains(name, "lite"):
		return 1
	case strings.Contains(name, "flash"):
		return 2
	}
	return 0
}

func buildGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return out
}

var geminiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// buildGeminiSchema converts the JSON Schema subset gquiz uses to a
// genai.Schema. Property order follows "required" so the model writes the
// question before its answer.
func buildGeminiSchema(def map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeString}
	if t, ok := geminiTypes[stringOf(def["type"])]; ok {
		schema.Type = t
	}
	schema.Description = stringOf(def["description"])
	schema.Enum = stringsOf(def["enum"])
	schema.Required = stringsOf(def["required"])
	schema.PropertyOrdering = schema.Required

	if props, ok := def["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if sub, ok := v.(map[string]any); ok {
				schema.Properties[name] = buildGeminiSchema(sub)
			}
		}
	}
	if items, ok := def["items"].(map[string]any); ok {
		schema.Items = buildGeminiSchema(items)
	}

	if n, ok := numberOf(def["minItems"]); ok {
		schema.MinItems = ptr(int64(n))
	}
	if n, ok := numberOf(def["maxItems"]); ok {
		schema.MaxItems = ptr(int64(n))
	}
	if n, ok := numberOf(def["minLength"]); ok {
		schema.MinLength = ptr(int64(n))
	}
	if n, ok := numberOf(def["minimum"]); ok {
		schema.Minimum = ptr(n)
	}
	if n, ok := numberOf(def["maximum"]); ok {
		schema.Maximum = ptr(n)
	}
	return schema
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringsOf(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		var out []string
		for _, e := range vs {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func ptr[T any](v T) *T { return &v }

func mapGeminiStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) > 0 {
		switch result.Candidates[0].FinishReason {
		case "STOP":
			return "end"
		case "MAX_TOKENS":
			return "max_tokens"
		}
	}
	return "end"
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Code
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			status = http.StatusTooManyRequests
		}
		return fromStatus(status, apiErr.Message, err)
	}
	return &ErrProviderUnavailable{Err: err}
}
