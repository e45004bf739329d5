// Package orchestrator implements the top-level driver (spec §4.5): binds
// Planner, State Manager, and Task Runner behind a single execute(request)
// entrypoint, emits the event stream, and honors cancellation. Grounded
// on the teacher's internal/roles/metaval/metaval.go for its
// manifest/tracker bookkeeping and hard-gate-before-LLM discipline (here
// repurposed as plain Go control flow, since the spec's Task Runner
// verdict already carries a terminal status — no second oracle call
// merges results) and on cmd/agsh/main.go for the overall wiring order.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"planloop/internal/approval"
	"planloop/internal/eventbus"
	"planloop/internal/planner"
	"planloop/internal/schema"
	"planloop/internal/state"
	"planloop/internal/taskrunner"
	"planloop/internal/telemetry"
)

var tracer = telemetry.Tracer("planloop/orchestrator")

// defaultApprovalThreshold is the initial ApprovalThreshold: which risk
// levels require task-level approval when a Gate is present. Default: high
// only.
var defaultApprovalThreshold = schema.RiskHigh

// Orchestrator binds the three core components for one session.
type Orchestrator struct {
	Planner    *planner.Planner
	TaskRunner *taskrunner.Runner
	Bus        *eventbus.Bus
	Gate       approval.Gate // nil: all approvals implicit-approve (spec §4.6)

	SessionID         string
	ApprovalThreshold schema.RiskLevel

	// mgr is the State Manager built by the most recent Execute call, kept
	// around so a caller can pull a snapshot after execution returns (e.g.
	// to hand to a snapshotstore.Store). Execute is not safe to call
	// concurrently on the same Orchestrator, so this single field is
	// sufficient rather than a map keyed by call.
	mgr *state.Manager
}

// Snapshot exports the state of the most recently completed (or
// cancelled) Execute call. Returns a Snapshot carrying only the session ID
// if no Execute call has yet accepted a plan.
func (o *Orchestrator) Snapshot() schema.Snapshot {
	if o.mgr == nil {
		return schema.Snapshot{SessionID: o.SessionID}
	}
	return o.mgr.Export()
}

// New constructs an Orchestrator. gate may be nil.
func New(sessionID string, p *planner.Planner, tr *taskrunner.Runner, bus *eventbus.Bus, gate approval.Gate) *Orchestrator {
	return &Orchestrator{
		Planner:           p,
		TaskRunner:        tr,
		Bus:               bus,
		Gate:              gate,
		SessionID:         sessionID,
		ApprovalThreshold: defaultApprovalThreshold,
	}
}

// ExecutionError is returned only for session-level terminal failures
// (spec §7: "Only the Orchestrator's top-level execute may return an
// error value, and it does so only for session-level terminal
// failures"). All other conditions are observable through events and the
// Summary.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("execution failed: %s", e.Reason) }

// Execute implements spec §4.5's protocol end to end.
func (o *Orchestrator) Execute(ctx context.Context, request string) (eventbus.Summary, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Execute")
	defer span.End()

	start := time.Now()

	o.emit(eventbus.Event{Kind: eventbus.PlanningStarted})

	plan, err := o.Planner.Plan(ctx, request)
	if err != nil {
		o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
		return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
	}

	mgr := state.New(o.SessionID)
	if err := mgr.SetPlan(plan); err != nil {
		o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
		return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
	}
	o.mgr = mgr
	o.emit(eventbus.Event{Kind: eventbus.PlanCreated, Plan: &plan})

	if o.Gate != nil {
		verdict, err := o.Gate.ApprovePlan(ctx, plan, request)
		if err != nil {
			o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
			return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
		}
		switch verdict {
		case schema.ApprovalReject:
			o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: "user-rejected"})
			return eventbus.Summary{Success: false, TotalTasks: len(plan.Tasks), Complexity: plan.Complexity}, &ExecutionError{Reason: "user-rejected"}
		case schema.ApprovalModify:
			plan, err = o.Planner.Plan(ctx, request)
			if err != nil {
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
				return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
			}
			mgr = state.New(o.SessionID)
			if err := mgr.SetPlan(plan); err != nil {
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
				return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
			}
			o.mgr = mgr
			o.emit(eventbus.Event{Kind: eventbus.PlanCreated, Plan: &plan})
		}
	}

	if err := mgr.StartExecution(); err != nil {
		o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
		return eventbus.Summary{Success: false}, &ExecutionError{Reason: err.Error()}
	}

	totalSteps := 0
	stepIndex := 0

	for {
		if ctx.Err() != nil {
			_ = mgr.MarkFailed("cancelled")
			o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: "cancelled"})
			return o.summarize(plan, mgr, start, totalSteps), &ExecutionError{Reason: "cancelled"}
		}

		current, ok := mgr.GetCurrentTask()
		if !ok {
			break
		}
		stepIndex++

		if o.Gate != nil && riskAtOrAbove(classifyRisk(current), o.ApprovalThreshold) {
			verdict, err := o.Gate.ApproveTask(ctx, current, classifyRisk(current), "")
			if err != nil {
				_ = mgr.MarkFailed(err.Error())
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
				return o.summarize(plan, mgr, start, totalSteps), &ExecutionError{Reason: err.Error()}
			}
			if verdict == schema.ApprovalReject {
				_ = mgr.MarkFailed("task-rejected")
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: "task-rejected"})
				return o.summarize(plan, mgr, start, totalSteps), &ExecutionError{Reason: "task-rejected"}
			}
		}

		outcome := o.TaskRunner.Run(ctx, mgr, current, o.Bus, o.SessionID, stepIndex)
		totalSteps++

		switch outcome.Kind {
		case taskrunner.Succeeded:
			if _, err := mgr.NextStep(); err != nil {
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: err.Error()})
				return o.summarize(plan, mgr, start, totalSteps), &ExecutionError{Reason: err.Error()}
			}
		case taskrunner.Failed:
			if ctx.Err() != nil {
				o.emit(eventbus.Event{Kind: eventbus.ExecutionFailed, Reason: "cancelled"})
				return o.summarize(plan, mgr, start, totalSteps), &ExecutionError{Reason: "cancelled"}
			}
			summary := o.summarize(plan, mgr, start, totalSteps)
			o.emit(eventbus.Event{Kind: eventbus.ExecutionCompleted, Summary: &summary})
			return summary, nil
		}

		if mgr.Phase() == schema.PhaseCompleted {
			break
		}
	}

	summary := o.summarize(plan, mgr, start, totalSteps)
	o.emit(eventbus.Event{Kind: eventbus.ExecutionCompleted, Summary: &summary})
	return summary, nil
}

func (o *Orchestrator) summarize(plan schema.Plan, mgr *state.Manager, start time.Time, totalSteps int) eventbus.Summary {
	completed := mgr.CompletedTasks()
	snap := mgr.Export()
	failed := 0
	for _, t := range snap.Plan.Tasks {
		if t.Status == schema.StatusFailed {
			failed++
		}
	}

	return eventbus.Summary{
		TotalTasks:     len(plan.Tasks),
		CompletedTasks: len(completed),
		FailedTasks:    failed,
		TotalSteps:     totalSteps,
		Duration:       time.Since(start),
		Success:        mgr.Phase() == schema.PhaseCompleted,
		Complexity:     plan.Complexity,
	}
}

func (o *Orchestrator) emit(ev eventbus.Event) {
	ev.SessionID = o.SessionID
	ev.Timestamp = time.Now()
	o.Bus.Publish(ev)
}

// classifyRisk is the heuristic-over-task-content fallback spec §4.6
// allows when the oracle does not supply a risk classification directly
// in the verdict extension: a task flagged requires-doc-search is medium
// risk and every other task is low. The task's title and description are
// not inspected, and no task is classified high.
func classifyRisk(t schema.Task) schema.RiskLevel {
	if t.RequiresDocSearch {
		return schema.RiskMedium
	}
	return schema.RiskLow
}

func riskAtOrAbove(risk, threshold schema.RiskLevel) bool {
	rank := map[schema.RiskLevel]int{schema.RiskLow: 0, schema.RiskMedium: 1, schema.RiskHigh: 2}
	return rank[risk] >= rank[threshold]
}
