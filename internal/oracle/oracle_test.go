package oracle

import (
	"context"
	"testing"
)

func TestFuncAdapter(t *testing.T) {
	var gotSystem, gotUser string
	f := Func(func(ctx context.Context, system, user string, opts Options) (string, error) {
		gotSystem, gotUser = system, user
		return "reply", nil
	})

	var o Oracle = f
	out, err := o.Complete(context.Background(), "sys", "usr", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "reply" || gotSystem != "sys" || gotUser != "usr" {
		t.Fatalf("got out=%q system=%q user=%q", out, gotSystem, gotUser)
	}
}

func TestStripThinkBlocks(t *testing.T) {
	in := "<think>internal reasoning</think>\nfinal answer"
	got := StripThinkBlocks(in)
	if got != "final answer" {
		t.Fatalf("got %q", got)
	}
}

func TestStripThinkBlocksNoBlock(t *testing.T) {
	in := "just an answer"
	if got := StripThinkBlocks(in); got != in {
		t.Fatalf("got %q, want unchanged", got)
	}
}

func TestNewHTTPClientFromTierRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TOOL_API_KEY", "")
	_, err := NewHTTPClientFromTier("TOOL")
	if err == nil {
		t.Fatal("expected error when no api key is configured")
	}
}

func TestNewHTTPClientFromTierPrefixOverridesFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fallback-key")
	t.Setenv("OPENAI_MODEL", "fallback-model")
	t.Setenv("BRAIN_API_KEY", "brain-key")
	t.Setenv("BRAIN_MODEL", "brain-model")

	c, err := NewHTTPClientFromTier("BRAIN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.apiKey != "brain-key" || c.model != "brain-model" {
		t.Fatalf("got apiKey=%q model=%q", c.apiKey, c.model)
	}
}
