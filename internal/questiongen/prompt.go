package questiongen

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You write high-quality four-option multiple-choice questions for the %s exam.

Rules:
- Generate exactly one question for the given syllabus chapter, at the level of the real exam.
- Mix pure knowledge, conceptual understanding and applied scenarios across questions.
- Provide exactly 4 options. Distractors should be plausible, but exactly one option must be clearly correct.
- correct_index is the zero-based position of the correct option.
- The explanation says why the correct option is right and why each other option is wrong.
- Rate the difficulty as basic, standard or advanced.
- Write the question, options and explanation in %s.
- Do not repeat any question from the "already in the bank" list.`

func buildSystemPrompt(cfg Config) string {
	return fmt.Sprintf(systemPromptTemplate, cfg.Exam, cfg.Language)
}

// buildUserMessage constructs the user message for one chapter.
func buildUserMessage(chapter string, prior []string, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Chapter: %s\n", chapter)

	b.WriteString("\nAlready in the bank for this chapter:\n")
	b.WriteString(buildDedup(prior, cfg.MaxPriorQuestions))

	return b.String()
}

// buildDedup formats prior questions for the prompt, respecting the max limit.
// Returns "None" if there are no prior questions.
func buildDedup(priorQuestions []string, max int) string {
	if len(priorQuestions) == 0 {
		return "None"
	}

	// Keep only the most recent N questions.
	if max > 0 && len(priorQuestions) > max {
		priorQuestions = priorQuestions[len(priorQuestions)-max:]
	}

	var b strings.Builder
	for i, q := range priorQuestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
