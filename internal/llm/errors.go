package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrRateLimit indicates the provider rejected the call with 429 or an
// equivalent quota status. It is a quota signal, never retried.
type ErrRateLimit struct {
	// Window is "minute" or "day" when the provider's message names the
	// exhausted quota window, and "" otherwise.
	Window string

	Err error
}

func (e *ErrRateLimit) Error() string {
	if e.Window != "" {
		return fmt.Sprintf("rate limited (%s quota): %v", e.Window, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the LLM returned content that does not
// conform to the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider or model could not serve
// the call: unreachable, 5xx, unknown model, or rejected credentials.
type ErrProviderUnavailable struct {
	// Status is the HTTP status when the provider answered, else 0.
	Status int
	Err    error
}

func (e *ErrProviderUnavailable) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("LLM provider unavailable (HTTP %d): %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// fromStatus maps an error response from a provider API. msg is the
// provider's error message, used to name the exhausted quota window.
func fromStatus(status int, msg string, err error) error {
	if status == http.StatusTooManyRequests {
		return &ErrRateLimit{Window: rateLimitWindow(msg), Err: err}
	}
	return &ErrProviderUnavailable{Status: status, Err: err}
}

// rateLimitWindow guesses the exhausted quota window from a provider error
// message. Gemini names its quota metrics with PerMinute/PerDay suffixes.
func rateLimitWindow(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "perday"), strings.Contains(m, "per day"), strings.Contains(m, "daily"):
		return "day"
	case strings.Contains(m, "perminute"), strings.Contains(m, "per minute"):
		return "minute"
	}
	return ""
}
