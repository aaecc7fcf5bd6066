package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/store"
)

// LoggingProvider records every call to one base provider in the audit log
// and emits a log line per call. A nil repo only logs.
type LoggingProvider struct {
	inner    Provider
	provider string
	repo     store.EventRepo
	logger   zerolog.Logger
}

// WithLogging wraps p. provider names the vendor ("gemini") in audit rows.
func WithLogging(p Provider, provider string, repo store.EventRepo, logger zerolog.Logger) Provider {
	return &LoggingProvider{inner: p, provider: provider, repo: repo, logger: logger}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	observeCall(ctx, err)

	data := store.LLMRequestEventData{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		data.Model = resp.Model
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.ResponseBody = string(resp.Content)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	l.logCall(data, err)

	if l.repo != nil {
		// The call's outcome stands even if its audit row is lost.
		if aerr := l.repo.AppendLLMRequest(context.WithoutCancel(ctx), data); aerr != nil {
			l.logger.Warn().Err(aerr).Msg("append LLM audit event")
		}
	}
	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// logCall logs successes at debug and rate limits at warn, with the
// exhausted window when known.
func (l *LoggingProvider) logCall(data store.LLMRequestEventData, err error) {
	ev := l.logger.Debug()
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		ev = l.logger.Warn().Str("window", rl.Window)
	} else if err != nil {
		ev = l.logger.Info()
	}
	ev.Str("provider", l.provider).
		Str("model", data.Model).
		Str("purpose", data.Purpose).
		Int64("latency_ms", data.LatencyMs).
		Int("tokens", data.InputTokens+data.OutputTokens).
		Err(err).
		Msg("llm call")
}

// serializeRequest renders a request for the audit log.
func serializeRequest(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
