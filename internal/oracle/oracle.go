// Package oracle defines the core's single outbound collaborator contract
// (spec §6 "Oracle call (outbound)") and ships two production adapters.
// The core consumes only the Oracle interface; it never imports a concrete
// provider package directly.
package oracle

import (
	"context"
	"time"
)

// Options configures one Complete call. Timeout is enforced by the caller
// via ctx; Oracle implementations should also respect an explicit Timeout
// field when set, since the Task Runner and Planner both construct a
// derived context with their own per-call timeout (spec §5 "Timeouts").
type Options struct {
	Timeout time.Duration
	// ToolSet is an opaque descriptor for the oracle's internal tool use.
	// The core never interprets it; it is threaded through verbatim so a
	// caller can advertise tool availability to providers that support it.
	ToolSet any
}

// Oracle is the external, non-deterministic reasoning service the core
// drives. Implementations must be safe for concurrent use by multiple
// sessions (spec §5: "they share only the oracle client, which is expected
// to be concurrency-safe").
type Oracle interface {
	// Complete takes a system prompt and a user prompt and returns the raw
	// text reply. The core does not consume tool-calling semantics
	// directly (spec §6) — the oracle is expected to internalize tool
	// invocation and return a final verdict as text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}

// Func adapts a plain function to the Oracle interface — used heavily in
// this module's own tests as a deterministic test double.
type Func func(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)

// Complete implements Oracle.
func (f Func) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	return f(ctx, systemPrompt, userPrompt, opts)
}
