package store

import (
	"context"
	"testing"
)

func seedLLMEvents(t *testing.T, repo EventRepo) {
	t.Helper()
	ctx := context.Background()
	events := []LLMRequestEventData{
		{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "question-gen", InputTokens: 100, OutputTokens: 50, LatencyMs: 200, Success: true, RequestBody: "req", ResponseBody: "resp"},
		{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "question-gen", InputTokens: 120, OutputTokens: 0, LatencyMs: 400, Success: false, ErrorMessage: "rate limited"},
		{Provider: "gemini", Model: "gemini-1.5-flash", Purpose: "refill", InputTokens: 90, OutputTokens: 40, LatencyMs: 300, Success: true},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestQueryLLMEvents(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	seedLLMEvents(t, repo)
	ctx := context.Background()

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Purpose != "refill" {
		t.Errorf("newest first: got purpose %q", all[0].Purpose)
	}

	limited, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 1, Purpose: "question-gen"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(limited) != 1 || limited[0].ErrorMessage != "rate limited" || limited[0].Success {
		t.Errorf("unexpected filtered result: %+v", limited)
	}
}

func TestGetLLMEvent(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	seedLLMEvents(t, repo)
	ctx := context.Background()

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	oldest := all[len(all)-1]

	e, err := repo.GetLLMEvent(ctx, oldest.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e == nil || e.RequestBody != "req" || e.ResponseBody != "resp" || !e.Success {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	missing, err := repo.GetLLMEvent(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing event, got %+v", missing)
	}
}

func TestLLMUsageAggregates(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	seedLLMEvents(t, repo)
	ctx := context.Background()

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("by purpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("len = %d, want 2", len(byPurpose))
	}
	qg := byPurpose[0]
	if qg.Purpose != "question-gen" || qg.Calls != 2 || qg.Failures != 1 || qg.InputTokens != 220 || qg.OutputTokens != 50 || qg.AvgLatencyMs != 300 {
		t.Errorf("unexpected question-gen stats: %+v", qg)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("by model: %v", err)
	}
	if len(byModel) != 2 || byModel[0].Model != "gemini-2.0-flash" || byModel[1].Calls != 1 {
		t.Errorf("unexpected model stats: %+v", byModel)
	}
}

func TestServedEvents(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	ctx := context.Background()

	for _, e := range []ServedEventData{
		{SessionID: "a", QuestionID: "q1", Chapter: "ml", Origin: "online"},
		{SessionID: "a", QuestionID: "q2", Chapter: "dl", Origin: "offline-seed", FallbackReason: "gate-closed"},
		{SessionID: "b", QuestionID: "q3", Chapter: "ml", Origin: "offline-seed", FallbackReason: "timeout"},
	} {
		if err := repo.AppendServed(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sessionA, err := repo.QueryServed(ctx, QueryOpts{Session: "a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(sessionA) != 2 || sessionA[0].QuestionID != "q2" || sessionA[0].FallbackReason != "gate-closed" {
		t.Errorf("unexpected session a events: %+v", sessionA)
	}

	counts, err := repo.ServedByOrigin(ctx)
	if err != nil {
		t.Fatalf("by origin: %v", err)
	}
	want := []OriginCount{{"offline-seed", 2}, {"online", 1}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
		}
	}
}
