package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abhisek/gquiz/internal/store"
)

func TestPrintLLMEvents(t *testing.T) {
	var buf bytes.Buffer
	printLLMEvents(&buf, nil)
	assert.Equal(t, "No LLM calls recorded.\n", buf.String())

	buf.Reset()
	printLLMEvents(&buf, []store.LLMEvent{
		{ID: 2, Timestamp: time.Now(), LLMRequestEventData: store.LLMRequestEventData{
			Model: "gemini-2.5-flash", Purpose: "refill", ErrorMessage: "rate limited (day quota)",
		}},
		{ID: 1, Timestamp: time.Now(), LLMRequestEventData: store.LLMRequestEventData{
			Model: "gemini-2.5-flash", Purpose: "question-gen", Success: true, InputTokens: 120, OutputTokens: 80,
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "failed: rate limited (day quota)")
	assert.Contains(t, out, "question-gen")
	assert.Contains(t, out, " ok\n")
}

func TestPrintLLMEvent_EmptyBodies(t *testing.T) {
	var buf bytes.Buffer
	printLLMEvent(&buf, &store.LLMEvent{ID: 7, LLMRequestEventData: store.LLMRequestEventData{
		Provider: "gemini", Model: "gemini-2.5-flash", Success: true, ResponseBody: "{}\n",
	}})
	out := buf.String()
	assert.Contains(t, out, "Call 7 at")
	assert.Contains(t, out, "--- request ---\n(empty)\n")
	assert.Contains(t, out, "--- response ---\n{}\n")
}

func TestPrintLLMUsage(t *testing.T) {
	var buf bytes.Buffer
	printLLMUsage(&buf, nil, nil)
	assert.Equal(t, "No LLM usage recorded yet.\n", buf.String())

	buf.Reset()
	printLLMUsage(&buf,
		[]store.UsageStat{
			{Purpose: "question-gen", Calls: 3, Failures: 1, InputTokens: 300, OutputTokens: 150},
			{Purpose: "refill", Calls: 2, InputTokens: 200, OutputTokens: 100},
		},
		[]store.UsageStat{
			{Model: "gemini-2.5-flash", Calls: 4, InputTokens: 400, OutputTokens: 200},
			{Model: "homegrown-model", Calls: 1, InputTokens: 100, OutputTokens: 50},
		},
	)
	out := buf.String()
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "total (priced models only)")
	assert.Regexp(t, `homegrown-model\s+1\s+\?`, out)
}

func TestPrintGeminiModels(t *testing.T) {
	var buf bytes.Buffer
	printGeminiModels(&buf, []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}, []string{"gemini-2.5-flash", "gemini-2.0-flash"})
	assert.Equal(t, " -  gemini-2.5-pro\n 1  gemini-2.5-flash\n 2  gemini-2.0-flash\n\nNumbered models are tried in that order (GQUIZ_LLM_GEMINI_MODELS).\n", buf.String())
}

func TestTruncateAndFormatCost(t *testing.T) {
	assert.Equal(t, "gemi", truncate("gemini", 4))
	assert.Equal(t, "gemini", truncate("gemini", 10))
	assert.Equal(t, "$0.0012", formatCost(0.00123))
	assert.Equal(t, "$1.50", formatCost(1.5))
}
