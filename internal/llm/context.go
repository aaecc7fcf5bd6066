package llm

import "context"

type contextKey string

const purposeKey contextKey = "llm_purpose"

// Purposes used by gquiz callers.
const (
	PurposeQuestionGen = "question-gen"
	PurposeRefill      = "refill"
)

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

type observerKey struct{}

// CallObserver is told the result of every remote call made under a
// context, retries and failover included.
type CallObserver func(err error)

// WithCallObserver attaches fn to ctx. Logged base providers report each
// call they make to it.
func WithCallObserver(ctx context.Context, fn CallObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func observeCall(ctx context.Context, err error) {
	if fn, ok := ctx.Value(observerKey{}).(CallObserver); ok && fn != nil {
		fn(err)
	}
}
