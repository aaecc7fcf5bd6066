package bank

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChoiceCount is the number of options every question carries.
const ChoiceCount = 4

// Origin records how a question entered the bank.
type Origin string

const (
	OriginOnline      Origin = "online"
	OriginOfflineSeed Origin = "offline-seed"
	OriginRefill      Origin = "refill"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginOnline, OriginOfflineSeed, OriginRefill:
		return true
	}
	return false
}

// Record is one multiple-choice question. Records are immutable once they
// enter the bank; the JSON form is one line of the bank file.
type Record struct {
	// ID is KeyOf(PromptText). It is recomputed by the store on Add, so
	// callers may leave it empty.
	ID string `json:"id"`

	// ChapterTag is the syllabus section the question belongs to.
	ChapterTag string `json:"chapterTag"`

	PromptText   string   `json:"promptText"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`

	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"createdAt"`

	// Difficulty is the generator's self-assessment: basic, standard or
	// advanced. Optional.
	Difficulty string `json:"difficulty,omitempty"`
}

// CorrectChoice returns the text of the correct option.
func (r Record) CorrectChoice() string {
	if r.CorrectIndex < 0 || r.CorrectIndex >= len(r.Choices) {
		return ""
	}
	return r.Choices[r.CorrectIndex]
}

// ErrDuplicateQuestion is returned by Add when a question with the same
// normalized text is already in the bank. The rejected record is discarded.
var ErrDuplicateQuestion = errors.New("duplicate question")

// ValidationError describes why a record failed the schema check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid question %s: %s", e.Field, e.Message)
}

// Validate checks r against the record schema: non-empty prompt and
// chapter, exactly four distinct non-empty choices, a correct index in
// range and a known origin. It returns nil when r is valid.
func Validate(r Record) *ValidationError {
	if strings.TrimSpace(r.PromptText) == "" {
		return &ValidationError{Field: "promptText", Message: "is empty"}
	}
	if Normalize(r.PromptText) == "" {
		return &ValidationError{Field: "promptText", Message: "has no content after normalization"}
	}
	if strings.TrimSpace(r.ChapterTag) == "" {
		return &ValidationError{Field: "chapterTag", Message: "is empty"}
	}
	if len(r.Choices) != ChoiceCount {
		return &ValidationError{
			Field:   "choices",
			Message: fmt.Sprintf("has %d entries, want %d", len(r.Choices), ChoiceCount),
		}
	}
	seen := make(map[string]bool, ChoiceCount)
	for i, c := range r.Choices {
		k := Normalize(c)
		if k == "" {
			return &ValidationError{Field: "choices", Message: fmt.Sprintf("entry %d is empty", i)}
		}
		if seen[k] {
			return &ValidationError{Field: "choices", Message: fmt.Sprintf("entry %d repeats an earlier choice", i)}
		}
		seen[k] = true
	}
	if r.CorrectIndex < 0 || r.CorrectIndex >= ChoiceCount {
		return &ValidationError{
			Field:   "correctIndex",
			Message: fmt.Sprintf("%d is outside [0,%d]", r.CorrectIndex, ChoiceCount-1),
		}
	}
	if !r.Origin.Valid() {
		return &ValidationError{Field: "origin", Message: fmt.Sprintf("unknown origin %q", r.Origin)}
	}
	return nil
}
