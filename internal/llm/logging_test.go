package llm

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/store"
)

func TestLogging_RecordsEvents(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	repo := st.EventRepo()

	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"ok":true}`), Usage: Usage{InputTokens: 7, OutputTokens: 3}},
		MockResponse{Err: &ErrRateLimit{Err: errors.New("429")}},
	)
	p := WithLogging(mock, "gemini", repo, zerolog.Nop())
	ctx := WithPurpose(context.Background(), PurposeQuestionGen)

	if _, err := p.Generate(ctx, Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "hi"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected error")
	}

	events, err := repo.QueryLLMEvents(context.Background(), store.QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}

	failed, ok := events[0], events[1]
	if failed.Success || failed.ErrorMessage == "" {
		t.Errorf("newest event should be the failure: %+v", failed)
	}
	if !ok.Success || ok.InputTokens != 7 || ok.OutputTokens != 3 {
		t.Errorf("unexpected success event: %+v", ok)
	}
	if ok.Provider != "gemini" || ok.Purpose != PurposeQuestionGen {
		t.Errorf("provider/purpose = %q/%q", ok.Provider, ok.Purpose)
	}
	if ok.ResponseBody != `{"ok":true}` {
		t.Errorf("response body = %q", ok.ResponseBody)
	}
}

func TestLogging_NilRepo(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", nil, zerolog.Nop())
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_ObserverSeesEveryRemoteCall(t *testing.T) {
	unavailable := MockResponse{Err: &ErrProviderUnavailable{Status: 503, Err: errors.New("503 overloaded")}}
	a := named("a", unavailable, unavailable)
	b := named("b", unavailable, unavailable)

	chain, err := WithFailover(zerolog.Nop(),
		WithLogging(a, "gemini", nil, zerolog.Nop()),
		WithLogging(b, "gemini", nil, zerolog.Nop()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := WithRetry(chain, RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1})

	var seen []error
	ctx := WithCallObserver(context.Background(), func(err error) { seen = append(seen, err) })
	if _, err := p.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected error")
	}

	if len(seen) != 4 {
		t.Fatalf("observed %d calls, want 4", len(seen))
	}
	if got := a.CallCount() + b.CallCount(); got != len(seen) {
		t.Fatalf("remote calls = %d, observed = %d", got, len(seen))
	}
	for i, err := range seen {
		var unavail *ErrProviderUnavailable
		if !errors.As(err, &unavail) {
			t.Errorf("call %d: unexpected error %v", i, err)
		}
	}
}

func TestSerializeRequest(t *testing.T) {
	got := serializeRequest(Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "question please"}},
		Schema:   &Schema{Name: "mcq", Definition: map[string]any{"type": "object"}},
	})
	want := "[system]\nbe brief\n\n[user]\nquestion please\n\n[schema: mcq]\n{\"type\":\"object\"}\n"
	if got != want {
		t.Fatalf("serializeRequest() = %q, want %q", got, want)
	}
}
