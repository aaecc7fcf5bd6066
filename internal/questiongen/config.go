package questiongen

// Config controls the behavior of the LLMGenerator.
type Config struct {
	// Exam names the certification the questions prepare for.
	Exam string `env:"EXAM" envDefault:"JDLA Deep Learning for GENERAL (G-test)"`

	// Language is the language questions are written in.
	Language string `env:"LANGUAGE" envDefault:"Japanese"`

	// DefaultChapter tags questions generated without a topic hint.
	DefaultChapter string `env:"DEFAULT_CHAPTER" envDefault:"general"`

	// MaxTokens is the token budget for the LLM response.
	MaxTokens int `env:"MAX_TOKENS" envDefault:"1024"`

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.7"`

	// MaxPriorQuestions is the maximum number of banked questions from the
	// same chapter to include in the prompt for deduplication.
	MaxPriorQuestions int `env:"MAX_PRIOR_QUESTIONS" envDefault:"8"`
}

// DefaultConfig returns a Config with the same defaults as the env tags.
func DefaultConfig() Config {
	return Config{
		Exam:              "JDLA Deep Learning for GENERAL (G-test)",
		Language:          "Japanese",
		DefaultChapter:    "general",
		MaxTokens:         1024,
		Temperature:       0.7,
		MaxPriorQuestions: 8,
	}
}
