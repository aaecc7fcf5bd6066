package llm

import (
	"slices"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.5-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-flash-lite", "gemini-2.5-flash-lite"},
		{"gemini-2.0-flash", "gemini-2.0-flash"}, // Pass-through
		{" gemini-pro ", "gemini-2.5-pro"},
	}
	for _, tt := range tests {
		got := GeminiModelID(tt.input)
		if got != tt.expected {
			t.Errorf("GeminiModelID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	schema := buildGeminiSchema(testSchema.Definition)

	if schema.Type != genai.TypeObject {
		t.Fatalf("type = %s, want OBJECT", schema.Type)
	}
	if len(schema.Properties) != 4 {
		t.Fatalf("properties = %d, want 4", len(schema.Properties))
	}
	if !slices.Equal(schema.PropertyOrdering, []string{"question", "choices", "correct_index", "difficulty"}) {
		t.Fatalf("ordering = %v", schema.PropertyOrdering)
	}

	choices := schema.Properties["choices"]
	if choices.Type != genai.TypeArray || choices.Items.Type != genai.TypeString {
		t.Fatalf("choices = %s of %s", choices.Type, choices.Items.Type)
	}
	if choices.MinItems == nil || *choices.MinItems != 4 || choices.MaxItems == nil || *choices.MaxItems != 4 {
		t.Fatalf("choices bounds = %v..%v", choices.MinItems, choices.MaxItems)
	}

	idx := schema.Properties["correct_index"]
	if idx.Type != genai.TypeInteger || idx.Minimum == nil || *idx.Minimum != 0 || idx.Maximum == nil || *idx.Maximum != 3 {
		t.Fatalf("correct_index = %+v", idx)
	}
	if q := schema.Properties["question"]; q.MinLength == nil || *q.MinLength != 1 {
		t.Fatalf("question minLength = %v", q.MinLength)
	}
	if got := schema.Properties["difficulty"].Enum; !slices.Equal(got, []string{"standard", "hard"}) {
		t.Fatalf("difficulty enum = %v", got)
	}
}

func TestBuildGeminiSchema_UnknownTypeIsString(t *testing.T) {
	schema := buildGeminiSchema(map[string]any{"type": "null", "required": []string{"a"}})
	if schema.Type != genai.TypeString {
		t.Fatalf("type = %s, want STRING", schema.Type)
	}
	if !slices.Equal(schema.Required, []string{"a"}) {
		t.Fatalf("required = %v", schema.Required)
	}
}

func TestBuildGeminiContents(t *testing.T) {
	got := buildGeminiContents([]Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	if len(got) != 2 || got[0].Role != "user" || got[1].Role != "model" || got[1].Parts[0].Text != "a" {
		t.Fatalf("contents = %+v", got)
	}
}

func TestRankGeminiModels(t *testing.T) {
	in := []string{
		"gemini-1.5-flash",
		"gemini-2.0-flash-lite",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"embedding-001",
		"gemini-2.5-pro",
	}
	want := []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-2.0-flash-lite",
		"gemini-1.5-flash",
		"embedding-001",
	}
	got := RankGeminiModels(in)
	if !slices.Equal(got, want) {
		t.Fatalf("RankGeminiModels() = %v, want %v", got, want)
	}
	if in[0] != "gemini-1.5-flash" {
		t.Fatal("input slice was reordered")
	}
}

func TestRateLimitWindow(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Quota exceeded for metric: generate_content_free_tier_requests, limit: GenerateRequestsPerDayPerProjectPerModel", "day"},
		{"Quota exceeded: GenerateRequestsPerMinutePerProjectPerModel", "minute"},
		{"too many requests per minute", "minute"},
		{"daily limit reached", "day"},
		{"Resource has been exhausted", ""},
	}
	for _, tt := range tests {
		if got := rateLimitWindow(tt.msg); got != tt.want {
			t.Errorf("rateLimitWindow(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
