package questiongen

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/quota"
)

// Kind classifies a generation failure for quota bookkeeping.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindMalformed   Kind = "malformed"
	KindTransport   Kind = "transport"
	KindTimeout     Kind = "timeout"
)

// Error is a classified generation failure.
type Error struct {
	Kind Kind

	// Window is the exhausted quota window ("minute", "day") when the
	// provider named it. Only set for KindRateLimited.
	Window string

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("question generation failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err. Errors that were not produced by
// a Generator are classified the same way a provider error would be.
// KindOf(nil) is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return classify(context.Background(), err).Kind
}

// WindowOf returns the rate-limit window named by err, or "".
func WindowOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Window
	}
	var rl *llm.ErrRateLimit
	if errors.As(err, &rl) {
		return rl.Window
	}
	return ""
}

// classify maps a provider error to a generation failure.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var rl *llm.ErrRateLimit
	if errors.As(err, &rl) {
		return &Error{Kind: KindRateLimited, Window: rl.Window, Err: err}
	}

	var invalid *llm.ErrInvalidResponse
	if errors.As(err, &invalid) {
		return &Error{Kind: KindMalformed, Err: err}
	}
	var maxTok *llm.ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return &Error{Kind: KindMalformed, Err: err}
	}

	return &Error{Kind: KindTransport, Err: err}
}

// AttemptOf maps a generation result to the quota outcome it represents.
func AttemptOf(err error) quota.Attempt {
	if err == nil {
		return quota.Attempt{Outcome: quota.OutcomeSuccess}
	}
	if KindOf(err) == KindRateLimited {
		return quota.Attempt{
			Outcome: quota.OutcomeRateLimited,
			Scope:   quota.Scope(WindowOf(err)),
			Detail:  err.Error(),
		}
	}
	return quota.Attempt{Outcome: quota.OutcomeOtherFailure, Detail: err.Error()}
}
