package questiongen

import "github.com/abhisek/gquiz/internal/llm"

// QuestionSchema defines the JSON schema for LLM question generation responses.
var QuestionSchema = &llm.Schema{
	Name:        "mcq-question",
	Description: "A single four-option multiple-choice exam question with explanation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question stem shown to the learner",
			},
			"choices": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"minItems":    4,
				"maxItems":    4,
				"description": "Exactly 4 distinct options, exactly one of them correct",
			},
			"correct_index": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     3,
				"description": "Zero-based index of the correct option in choices",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Why the correct option is right and why each other option is wrong",
			},
			"difficulty": map[string]any{
				"type":        "string",
				"enum":        []any{"basic", "standard", "advanced"},
				"description": "Self-assessed difficulty",
			},
		},
		"required":             []any{"question", "choices", "correct_index", "explanation", "difficulty"},
		"additionalProperties": false,
	},
}
