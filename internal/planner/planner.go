// Package planner implements the single-oracle-call planning phase (spec
// §4.3): user request in, a normalized, acyclic, topologically ordered
// task list out. Grounded on the teacher's
// internal/roles/planner/planner.go for the system-prompt/dispatch shape;
// the teacher's replanning, memory calibration, and `cc` sub-tool
// consultation loop are not part of this contract (see DESIGN.md).
package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"planloop/internal/codec"
	"planloop/internal/oracle"
	"planloop/internal/schema"
	"planloop/internal/telemetry"
)

var tracer = telemetry.Tracer("planloop/planner")

// DefaultTimeout is the planner call's own configurable timeout (spec §5:
// "a separate configurable, default same 5 minutes").
const DefaultTimeout = 5 * time.Minute

// systemPrompt is versioned alongside codec.ParsePlannerOutput — any
// change to the requested wire shape here is a breaking change to that
// parser (spec §4.1 "Contract detail").
const systemPrompt = `You are the planning stage of an autonomous coding assistant.

Given a user's request, break it into a small number (target 3-5) of
coarse-grained tasks that, executed in order, accomplish the request.

Respond with exactly one JSON object and nothing else:

{
  "todos": [
    {
      "id": "short-stable-slug",
      "title": "short imperative title",
      "description": "what this task must accomplish, with enough detail for an engineer with no other context to do it",
      "dependencies": ["ids of todos that must complete first"],
      "requires-doc-search": false
    }
  ],
  "complexity": "simple"
}

"complexity" must be exactly one of "simple", "moderate", "complex", reflecting
your overall assessment of the request. Dependencies must only reference
other "id" values in this same todos list. List todos in an order consistent
with their dependencies: a todo must not depend on a todo that appears after
it.`

// PlanningError is returned only for outright planner-subsystem failures
// (spec §7: "oracle offline on the planning call with no partial
// response") — it aborts before any tasks run. Malformed or invalid
// oracle output does NOT produce a PlanningError; it falls back to the
// degenerate plan instead.
type PlanningError struct {
	Cause error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planner: %s", e.Cause) }
func (e *PlanningError) Unwrap() error { return e.Cause }

// Planner performs the single oracle call that turns a user request into
// an ordered task list.
type Planner struct {
	Oracle  oracle.Oracle
	Timeout time.Duration
}

// New constructs a Planner against the given oracle with the default
// timeout.
func New(o oracle.Oracle) *Planner {
	return &Planner{Oracle: o, Timeout: DefaultTimeout}
}

// Plan implements spec §4.3's plan(userRequest) → (plan, complexity) |
// PlanningError.
func (p *Planner) Plan(ctx context.Context, userRequest string) (schema.Plan, error) {
	ctx, span := tracer.Start(ctx, "planner.Plan")
	defer span.End()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.Oracle.Complete(callCtx, systemPrompt, userRequest, oracle.Options{Timeout: timeout})
	if err != nil {
		if callCtx.Err() == context.Canceled && ctx.Err() == context.Canceled {
			return schema.Plan{}, &PlanningError{Cause: fmt.Errorf("planning cancelled: %w", err)}
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return schema.Plan{}, &PlanningError{Cause: fmt.Errorf("planning timeout: %w", err)}
		}
		log.Printf("[planner] oracle call failed: %v", err)
		return schema.Plan{}, &PlanningError{Cause: err}
	}

	out, err := codec.ParsePlannerOutput(raw)
	if err != nil {
		log.Printf("[planner] malformed planner output, falling back to degenerate plan: %v", err)
		return degeneratePlan(userRequest), nil
	}

	plan, err := normalize(*out)
	if err != nil {
		log.Printf("[planner] invalid planner output (%v), falling back to degenerate plan", err)
		return degeneratePlan(userRequest), nil
	}

	return plan, nil
}

// degeneratePlan implements spec §4.3's failure policy: a single task
// containing the original request, flagged requires-doc-search, so the
// contract "execute produces something" survives even malformed planner
// output (spec §9 open question 2: single degenerate task, not three).
func degeneratePlan(userRequest string) schema.Plan {
	return schema.Plan{
		Complexity: "moderate",
		Tasks: []schema.Task{
			{
				ID:                "t1",
				Title:             "Fulfill request",
				Description:       userRequest,
				Status:            schema.StatusPending,
				RequiresDocSearch: true,
			},
		},
	}
}

// normalize validates the parsed planner output (dependency closure,
// acyclicity via DFS) and, if the list order is inconsistent with the
// dependency DAG, silently sorts it into deterministic topological order
// and records the reorder (spec §4.3 step 2: "choose: silently sort ...
// and record the reorder").
func normalize(out codec.PlannerOutput) (schema.Plan, error) {
	ids := make(map[string]bool, len(out.Todos))
	for _, t := range out.Todos {
		ids[t.ID] = true
	}
	for _, t := range out.Todos {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return schema.Plan{}, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return schema.Plan{}, fmt.Errorf("task %q depends on itself", t.ID)
			}
		}
	}

	order, err := topologicalSort(out.Todos)
	if err != nil {
		return schema.Plan{}, err
	}

	byID := make(map[string]codec.PlannerTodo, len(out.Todos))
	for _, t := range out.Todos {
		byID[t.ID] = t
	}

	reordered := false
	for i, t := range out.Todos {
		if t.ID != order[i] {
			reordered = true
			break
		}
	}

	tasks := make([]schema.Task, 0, len(order))
	for _, id := range order {
		t := byID[id]
		tasks = append(tasks, schema.Task{
			ID:                t.ID,
			Title:             t.Title,
			Description:       t.Description,
			Status:            schema.StatusPending,
			Dependencies:      append([]string(nil), t.Dependencies...),
			RequiresDocSearch: t.RequiresDocSearch,
		})
	}

	return schema.Plan{
		Tasks:      tasks,
		Complexity: out.Complexity,
		Reordered:  reordered,
	}, nil
}

// topologicalSort performs a deterministic DFS-based topological sort with
// visiting/visited sets for cycle detection (spec §4.3 step 2). Ties are
// broken by original list order so the result is deterministic across
// runs given the same input.
func topologicalSort(todos []codec.PlannerTodo) ([]string, error) {
	byID := make(map[string]codec.PlannerTodo, len(todos))
	order := make([]string, 0, len(todos))
	for i, t := range todos {
		byID[t.ID] = t
		order = append(order, t.ID)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(todos))
	var result []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("cycle detected at task %q", id)
		}
		state[id] = visiting
		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		result = append(result, id)
		return nil
	}

	for _, id := range order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return result, nil
}
