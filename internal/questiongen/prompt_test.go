package questiongen

import (
	"strings"
	"testing"
)

func TestBuildUserMessage_NoPrior(t *testing.T) {
	msg := buildUserMessage("transformers", nil, DefaultConfig())

	if !strings.Contains(msg, "Chapter: transformers") {
		t.Error("missing chapter")
	}
	if !strings.Contains(msg, "Already in the bank for this chapter:\nNone") {
		t.Error("expected 'None' for prior questions")
	}
}

func TestBuildDedup_KeepsMostRecent(t *testing.T) {
	got := buildDedup([]string{"q1", "q2", "q3"}, 2)
	if got != "1. q2\n2. q3" {
		t.Fatalf("buildDedup() = %q", got)
	}
}

func TestBuildDedup_NoLimit(t *testing.T) {
	got := buildDedup([]string{"q1", "q2"}, 0)
	if got != "1. q1\n2. q2" {
		t.Fatalf("buildDedup() = %q", got)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exam = "AWS SAA"
	cfg.Language = "English"
	p := buildSystemPrompt(cfg)
	if !strings.Contains(p, "for the AWS SAA exam") {
		t.Error("exam not in prompt")
	}
	if !strings.Contains(p, "in English.") {
		t.Error("language not in prompt")
	}
}
