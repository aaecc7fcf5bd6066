// Package questiongen produces multiple-choice questions with an LLM.
package questiongen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/llm"
)

// Generator produces one candidate question for a chapter. Failures are
// returned as *Error; use KindOf to classify them.
type Generator interface {
	// Generate produces a single validated question. An empty topicHint
	// lets the model pick any syllabus topic.
	Generate(ctx context.Context, topicHint string) (*bank.Record, error)
}

// PriorSource supplies the questions already in a chapter so the prompt
// can steer the model away from them.
type PriorSource interface {
	ByChapter(chapter string) []bank.Record
}

// LLMGenerator implements Generator using the LLM provider.
type LLMGenerator struct {
	provider llm.Provider
	prior    PriorSource
	config   Config
	now      func() time.Time
}

// New creates a new LLMGenerator. prior may be nil.
func New(provider llm.Provider, prior PriorSource, cfg Config) *LLMGenerator {
	return &LLMGenerator{provider: provider, prior: prior, config: cfg, now: time.Now}
}

// questionOutput is the raw LLM response before validation.
type questionOutput struct {
	Question     string   `json:"question"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Difficulty   string   `json:"difficulty"`
}

func (g *LLMGenerator) Generate(ctx context.Context, topicHint string) (*bank.Record, error) {
	if llm.PurposeFrom(ctx) == "unknown" {
		ctx = llm.WithPurpose(ctx, llm.PurposeQuestionGen)
	}

	chapter := strings.TrimSpace(topicHint)
	if chapter == "" {
		chapter = g.config.DefaultChapter
	}

	req := llm.Request{
		System: buildSystemPrompt(g.config),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(chapter, g.priorPrompts(chapter), g.config)},
		},
		Schema:      QuestionSchema,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}

	var raw questionOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("parse LLM response: %w", err)}
	}

	rec := &bank.Record{
		ChapterTag:   chapter,
		PromptText:   strings.TrimSpace(raw.Question),
		Choices:      trimAll(raw.Choices),
		CorrectIndex: raw.CorrectIndex,
		Explanation:  strings.TrimSpace(raw.Explanation),
		Origin:       bank.OriginOnline,
		CreatedAt:    g.now().UTC(),
		Difficulty:   normalizeDifficulty(raw.Difficulty),
	}
	if verr := bank.Validate(*rec); verr != nil {
		return nil, &Error{Kind: KindMalformed, Err: verr}
	}
	rec.ID = bank.KeyOf(rec.PromptText)

	return rec, nil
}

// priorPrompts returns the prompt texts already banked for chapter, oldest
// first.
func (g *LLMGenerator) priorPrompts(chapter string) []string {
	if g.prior == nil {
		return nil
	}
	records := g.prior.ByChapter(chapter)
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.PromptText
	}
	return out
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "basic", "standard", "advanced":
		return d
	}
	return "standard"
}
