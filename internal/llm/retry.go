package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryProvider retries transient failures with exponential backoff and
// jitter. It sits outside the failover chain, so one attempt walks every
// model once.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps p with the retry policy in cfg. MaxAttempts below one
// means a single attempt.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	attempts := max(1, r.config.MaxAttempts)
	invalidSeen := false

	for attempt := 0; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		switch classify(err) {
		case retryNever:
			return nil, err
		case retryOnce:
			if invalidSeen {
				return nil, err
			}
			invalidSeen = true
		}
		if attempt+1 >= attempts {
			return nil, err
		}

		t := time.NewTimer(r.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

type retryClass int

const (
	retryNever retryClass = iota
	retryOnce
	retryAlways
)

// classify decides how an error is retried. A 429 is never retried: the
// caller records it against the local quota and falls back to the bank.
func classify(err error) retryClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retryNever
	}

	var rl *ErrRateLimit
	var maxTok *ErrMaxTokensExceeded
	var invalid *ErrInvalidResponse
	var unavail *ErrProviderUnavailable
	switch {
	case errors.As(err, &rl), errors.As(err, &maxTok):
		return retryNever
	case errors.As(err, &invalid):
		return retryOnce
	case errors.As(err, &unavail):
		// 4xx other than a timeout will not heal on its own.
		if s := unavail.Status; s >= 400 && s < 500 && s != http.StatusRequestTimeout {
			return retryNever
		}
	}
	return retryAlways
}

// backoff is InitialWait * Multiplier^attempt capped at MaxWait, with
// ±20% jitter.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	wait := math.Min(
		float64(r.config.InitialWait)*math.Pow(r.config.Multiplier, float64(attempt)),
		float64(r.config.MaxWait),
	)
	wait *= 0.8 + 0.4*rand.Float64()
	return time.Duration(max(wait, 0))
}
