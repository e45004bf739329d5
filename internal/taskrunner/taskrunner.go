// Package taskrunner implements the execute→verify→debug micro-loop for a
// single task (spec §4.4): EXECUTING/DEBUGGING state machine, bounded
// retry, one oracle call per attempt. This merges the teacher's
// internal/roles/executor/executor.go (attempt loop, duplicate-output
// detection idiom) and internal/roles/agentval/agentval.go
// (verdict-driven transition logic) into the single-oracle-call-per-
// attempt shape the spec requires — the teacher's second, separate
// "agent validator" oracle call has no counterpart here: the Task
// Runner's one oracle call per attempt already returns a verdict with a
// terminal status.
package taskrunner

import (
	"context"
	"fmt"
	"log"
	"time"

	"planloop/internal/codec"
	"planloop/internal/eventbus"
	"planloop/internal/oracle"
	"planloop/internal/schema"
	"planloop/internal/state"
	"planloop/internal/telemetry"
)

var tracer = telemetry.Tracer("planloop/taskrunner")

// DefaultMaxDebugAttempts and DefaultTimeout are the spec's stated
// defaults (§4.4, §5): a 5-minute per-attempt timeout and an
// implementation-chosen retry budget.
const (
	DefaultMaxDebugAttempts = 3
	DefaultTimeout          = 5 * time.Minute
)

// OutcomeKind discriminates the Task Runner's terminal result.
type OutcomeKind string

const (
	Succeeded OutcomeKind = "succeeded"
	Failed    OutcomeKind = "failed"
)

// Outcome is the Task Runner's contract result (spec §4.4: "run(task) →
// Outcome ∈ {Succeeded(result), Failed(reason)}; never throws into the
// Orchestrator").
type Outcome struct {
	Kind   OutcomeKind
	Result string
	Reason string
}

// Runner drives one task through EXECUTING/DEBUGGING to a terminal state.
type Runner struct {
	Oracle           oracle.Oracle
	MaxDebugAttempts int
	Timeout          time.Duration
}

// New constructs a Runner with spec defaults.
func New(o oracle.Oracle) *Runner {
	return &Runner{Oracle: o, MaxDebugAttempts: DefaultMaxDebugAttempts, Timeout: DefaultTimeout}
}

// runnerState is the task-local state machine position (spec §4.4
// diagram). It is distinct from schema.Status: a task's Status as stored
// in the Manager only ever becomes completed/failed on a terminal
// transition, but internally the Task Runner cycles between executing and
// debugging while attempting.
type runnerState int

const (
	executing runnerState = iota
	debugging
)

// Run executes the micro-loop for task until it succeeds, is
// unrecoverably failed, or ctx is cancelled. mgr is mutated via its named
// transitions as the loop proceeds; ev/sessionID are used to emit the
// task-started/debug-started/task-completed/task-failed events spec
// §4.4 "Observable side effects" requires.
func (r *Runner) Run(ctx context.Context, mgr *state.Manager, task schema.Task, ev *eventbus.Bus, sessionID string, stepIndex int) Outcome {
	maxAttempts := r.MaxDebugAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxDebugAttempts
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ev.Publish(eventbus.Event{Kind: eventbus.TaskStarted, SessionID: sessionID, Task: &task, StepIndex: stepIndex, Timestamp: time.Now()})

	st := executing
	counter := 0
	var lastAttemptText string
	repeatNotice := false

	for {
		if ctx.Err() != nil {
			reason := "cancelled"
			_ = mgr.RecordFailure(task.ID, schema.VerdictError{Message: reason}, counter)
			_ = mgr.MarkFailed(reason)
			ev.Publish(eventbus.Event{Kind: eventbus.TaskFailed, SessionID: sessionID, Task: &task, Reason: reason, Timestamp: time.Now()})
			return Outcome{Kind: Failed, Reason: reason}
		}

		if st == debugging {
			ev.Publish(eventbus.Event{Kind: eventbus.DebugStarted, SessionID: sessionID, Task: &task, Attempt: counter, Timestamp: time.Now()})
		}

		verdict, attemptText, err := r.attempt(ctx, mgr, task, st, timeout, repeatNotice)
		if err != nil {
			// Synthesized non-success verdict: an oracle call error
			// (network, timeout, cancellation) is counted as a non-success
			// verdict with the error text as message (spec §4.4 transition
			// rule for oracle errors). Parse errors are already folded into
			// a needs-debug verdict by attempt.
			verdict = &schema.Verdict{
				Status: schema.VerdictNeedsDebug,
				Error:  &schema.VerdictError{Message: err.Error()},
			}
			attemptText = ""
		}

		repeated := attemptText != "" && attemptText == lastAttemptText
		lastAttemptText = attemptText
		repeatNotice = repeated

		switch {
		case verdict.Status == schema.VerdictSuccess:
			if st == executing {
				if rerr := mgr.RecordSuccess(task.ID, *verdict); rerr != nil {
					log.Printf("[taskrunner] RecordSuccess invariant violation: %v", rerr)
				}
			} else {
				if rerr := mgr.RecordDebug(task.ID, *verdict, counter); rerr != nil {
					log.Printf("[taskrunner] RecordDebug invariant violation: %v", rerr)
				}
			}
			ev.Publish(eventbus.Event{Kind: eventbus.TaskCompleted, SessionID: sessionID, Task: &task, Result: verdict.Result, Timestamp: time.Now()})
			return Outcome{Kind: Succeeded, Result: verdict.Result}

		case st == executing:
			// EXECUTING, failed|needs-debug -> DEBUGGING. This transition
			// itself makes no oracle call; it only arms the next loop
			// iteration's attempt as debug attempt 1, whose debug-started
			// event fires at the top of that iteration.
			mgr.EnterDebugMode()
			verr := verdictError(verdict)
			if rerr := mgr.RecordFailure(task.ID, verr, 0); rerr != nil {
				log.Printf("[taskrunner] RecordFailure invariant violation: %v", rerr)
			}
			st = debugging
			counter = 1

		case counter < maxAttempts:
			// DEBUGGING, non-success, budget remains -> stay DEBUGGING.
			verr := verdictError(verdict)
			if rerr := mgr.RecordFailure(task.ID, verr, counter); rerr != nil {
				log.Printf("[taskrunner] RecordFailure invariant violation: %v", rerr)
			}
			if repeated {
				log.Printf("[taskrunner] task %s: oracle repeated its last attempt verbatim on attempt %d", task.ID, counter)
			}
			counter++

		default:
			// DEBUGGING, budget exhausted -> FAILED (terminal).
			verr := verdictError(verdict)
			_ = mgr.RecordFailure(task.ID, verr, counter)
			reason := verr.Message
			_ = mgr.MarkFailed(fmt.Sprintf("task %s exhausted debug budget: %s", task.ID, reason))
			ev.Publish(eventbus.Event{Kind: eventbus.TaskFailed, SessionID: sessionID, Task: &task, Reason: reason, Timestamp: time.Now()})
			return Outcome{Kind: Failed, Reason: reason}
		}
	}
}

// verdictError extracts the error detail from a non-success verdict,
// synthesizing one if the oracle omitted it (schema invariant violation,
// treated defensively rather than as a second failure mode).
func verdictError(v *schema.Verdict) schema.VerdictError {
	if v.Error != nil {
		return *v.Error
	}
	return schema.VerdictError{Message: "oracle returned a non-success verdict with no error detail"}
}

// attempt performs one oracle round-trip: build the prompt view from
// mgr's current state, format it, call the oracle, parse the reply. A
// verdict with status=success but an empty result is treated as
// needs-debug (spec §4.4 "Ordering & tie-breaks") — the codec already
// enforces this by construction, since ParseVerdict rejects that shape as
// InvalidSchema, which attempt folds into a synthesized needs-debug error
// here rather than propagating the parse error type upward.
func (r *Runner) attempt(ctx context.Context, mgr *state.Manager, task schema.Task, st runnerState, timeout time.Duration, repeatNotice bool) (*schema.Verdict, string, error) {
	ctx, span := tracer.Start(ctx, "taskrunner.attempt")
	defer span.End()

	lastResult, _ := mgr.GetLastStepResult()
	lastErr, _ := mgr.GetLastError()
	history := mgr.GetHistoryForLLM()
	hints := mgr.GetAdvisoryNextSteps()

	view := codec.TaskView{
		Task:           task,
		LastStepResult: lastResult,
		DebugMode:      st == debugging,
		LastError:      lastErr,
		History:        history,
		AdvisoryHints:  hints,
		RepeatNotice:   repeatNotice,
	}
	prompt := codec.FormatTaskPrompt(view)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := r.Oracle.Complete(callCtx, taskRunnerSystemPrompt, prompt, oracle.Options{Timeout: timeout})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, "", fmt.Errorf("task-timeout")
		}
		return nil, "", err
	}

	verdict, err := codec.ParseVerdict(raw)
	if err != nil {
		return &schema.Verdict{
			Status: schema.VerdictNeedsDebug,
			Error:  &schema.VerdictError{Message: err.Error()},
		}, raw, nil
	}
	return verdict, raw, nil
}

// taskRunnerSystemPrompt is versioned alongside codec.ParseVerdict.
const taskRunnerSystemPrompt = `You are the execution stage of an autonomous coding assistant.

You will be given one task to complete, optionally with context from prior
tasks and, if you are in a debug attempt, the error from your previous try.
Perform the task using whatever tools your runtime exposes, then respond
with exactly one JSON object and nothing else:

{
  "status": "success" | "failed" | "needs-debug",
  "result": "what you accomplished (required, non-empty, when status=success)",
  "log_entries": [{"level": "debug"|"info"|"warning"|"error", "message": "...", "timestamp": "2025-01-01T00:00:00Z"}],
  "files_changed": [{"path": "...", "action": "created"|"modified"|"deleted"}],
  "next_steps": ["optional hints for the next task"],
  "error": {"message": "required, non-empty, when status is failed or needs-debug", "details": "...", "stderr": "..."}
}`
