package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// FailoverProvider tries a list of providers in order. An unavailable
// provider falls through to the next one. A rate limit stops the chain:
// the caller treats it as a quota signal, not a model problem.
type FailoverProvider struct {
	providers []Provider
	logger    zerolog.Logger
}

// WithFailover chains providers. A single provider is returned unwrapped.
func WithFailover(logger zerolog.Logger, providers ...Provider) (Provider, error) {
	switch len(providers) {
	case 0:
		return nil, fmt.Errorf("failover needs at least one provider")
	case 1:
		return providers[0], nil
	}
	return &FailoverProvider{providers: providers, logger: logger}, nil
}

func (f *FailoverProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for i, p := range f.providers {
		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !f.shouldFailover(ctx, err) {
			return nil, err
		}
		if i < len(f.providers)-1 {
			f.logger.Warn().Err(err).
				Str("model", p.ModelID()).
				Str("next", f.providers[i+1].ModelID()).
				Msg("model unavailable, trying next")
		}
	}
	return nil, lastErr
}

func (f *FailoverProvider) shouldFailover(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return false
	}
	var maxTok *ErrMaxTokensExceeded
	return !errors.As(err, &maxTok)
}

// ModelID lists the chained models, e.g. "gemini-2.5-flash>gemini-2.0-flash".
func (f *FailoverProvider) ModelID() string {
	ids := make([]string, len(f.providers))
	for i, p := range f.providers {
		ids[i] = p.ModelID()
	}
	return strings.Join(ids, ">")
}
