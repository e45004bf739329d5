package state

import (
	"testing"

	"planloop/internal/schema"
)

func twoTaskPlan() schema.Plan {
	return schema.Plan{
		Complexity: "simple",
		Tasks: []schema.Task{
			{ID: "a", Title: "A"},
			{ID: "b", Title: "B", Dependencies: []string{"a"}},
		},
	}
}

func TestSetPlanRejectsDuplicateIDs(t *testing.T) {
	m := New("s1")
	plan := schema.Plan{Tasks: []schema.Task{{ID: "a"}, {ID: "a"}}}
	if err := m.SetPlan(plan); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetPlanRejectsOutOfOrderDependency(t *testing.T) {
	m := New("s1")
	plan := schema.Plan{Tasks: []schema.Task{
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "a"},
	}}
	if err := m.SetPlan(plan); err == nil {
		t.Fatal("expected error for out-of-order dependency")
	}
}

func TestSetPlanRejectsAfterExecutionStarted(t *testing.T) {
	m := New("s1")
	if err := m.SetPlan(twoTaskPlan()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.StartExecution(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SetPlan(twoTaskPlan()); err == nil {
		t.Fatal("expected error setting plan twice")
	}
}

func TestRecordSuccessAdvancesAndClearsState(t *testing.T) {
	m := New("s1")
	if err := m.SetPlan(twoTaskPlan()); err != nil {
		t.Fatalf("setplan: %v", err)
	}
	if err := m.StartExecution(); err != nil {
		t.Fatalf("start: %v", err)
	}

	current, ok := m.GetCurrentTask()
	if !ok || current.ID != "a" {
		t.Fatalf("got %+v, ok=%v", current, ok)
	}

	m.EnterDebugMode()
	if err := m.RecordSuccess("a", schema.Verdict{Status: schema.VerdictSuccess, Result: "X=42"}); err != nil {
		t.Fatalf("recordsuccess: %v", err)
	}
	if lastErr, set := m.GetLastError(); set {
		t.Fatalf("last error not cleared: %q", lastErr)
	}
	if m.DebugMode() {
		t.Fatal("debug mode not cleared")
	}

	result, ok := m.GetLastStepResult()
	if !ok || result != "X=42" {
		t.Fatalf("got %q, ok=%v", result, ok)
	}

	more, err := m.NextStep()
	if err != nil {
		t.Fatalf("nextstep: %v", err)
	}
	if !more {
		t.Fatal("expected more tasks")
	}

	current, ok = m.GetCurrentTask()
	if !ok || current.ID != "b" {
		t.Fatalf("got %+v", current)
	}
}

func TestRecordSuccessRejectsNonCurrentTask(t *testing.T) {
	m := New("s1")
	_ = m.SetPlan(twoTaskPlan())
	_ = m.StartExecution()

	if err := m.RecordSuccess("b", schema.Verdict{Status: schema.VerdictSuccess, Result: "r"}); err == nil {
		t.Fatal("expected invariant violation recording success for non-current task")
	}
}

func TestRecordFailureDoesNotAdvanceCursor(t *testing.T) {
	m := New("s1")
	_ = m.SetPlan(twoTaskPlan())
	_ = m.StartExecution()

	if err := m.RecordFailure("a", schema.VerdictError{Message: "boom"}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Cursor() != 0 {
		t.Fatalf("cursor advanced on failure: %d", m.Cursor())
	}
	if lastErr, ok := m.GetLastError(); !ok || lastErr != "boom" {
		t.Fatalf("got %q, ok=%v", lastErr, ok)
	}
}

func TestNextStepCompletesSessionWhenExhausted(t *testing.T) {
	m := New("s1")
	_ = m.SetPlan(schema.Plan{Tasks: []schema.Task{{ID: "a"}}})
	_ = m.StartExecution()
	_ = m.RecordSuccess("a", schema.Verdict{Status: schema.VerdictSuccess, Result: "done"})

	more, err := m.NextStep()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if more {
		t.Fatal("expected no more tasks")
	}
	if m.Phase() != schema.PhaseCompleted {
		t.Fatalf("got phase %s", m.Phase())
	}
}

func TestMarkFailedIsTerminal(t *testing.T) {
	m := New("s1")
	_ = m.SetPlan(twoTaskPlan())
	_ = m.StartExecution()

	if err := m.MarkFailed("cancelled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Phase() != schema.PhaseFailed {
		t.Fatalf("got phase %s", m.Phase())
	}
	if err := m.MarkFailed("again"); err == nil {
		t.Fatal("expected error marking failed twice")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := New("s1")
	_ = m.SetPlan(twoTaskPlan())
	_ = m.StartExecution()
	_ = m.RecordSuccess("a", schema.Verdict{Status: schema.VerdictSuccess, Result: "X=42", LogEntries: []schema.LogEntry{{Message: "wrote a"}}})
	_, _ = m.NextStep()

	snap := m.Export()
	restored := Import(snap)

	if restored.Phase() != m.Phase() {
		t.Fatalf("phase mismatch: %s vs %s", restored.Phase(), m.Phase())
	}
	if restored.Cursor() != m.Cursor() {
		t.Fatalf("cursor mismatch: %d vs %d", restored.Cursor(), m.Cursor())
	}
	current, ok := restored.GetCurrentTask()
	if !ok || current.ID != "b" {
		t.Fatalf("got %+v, ok=%v", current, ok)
	}
	if err := restored.RecordFailure("b", schema.VerdictError{Message: "nope"}, 1); err != nil {
		t.Fatalf("unexpected error continuing from restored state: %v", err)
	}
}
