package eventbus

import (
	"time"

	"planloop/internal/schema"
)

// Kind enumerates the minimal event set spec §4.5 requires. All events
// carry the session identifier and are strictly ordered per session.
type Kind string

const (
	PlanningStarted    Kind = "planning-started"
	PlanCreated        Kind = "plan-created"
	TaskStarted        Kind = "task-started"
	DebugStarted       Kind = "debug-started"
	TaskCompleted      Kind = "task-completed"
	TaskFailed         Kind = "task-failed"
	ExecutionCompleted Kind = "execution-completed"
	ExecutionFailed    Kind = "execution-failed"
)

// Event is a value snapshot published to the bus — never a shared mutable
// reference, per spec §6 ("Payloads are value snapshots").
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Plan       *schema.Plan `json:"plan,omitempty"`
	Task       *schema.Task `json:"task,omitempty"`
	StepIndex  int          `json:"step_index,omitempty"`
	Attempt    int          `json:"attempt,omitempty"`
	Result     string       `json:"result,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Summary    *Summary     `json:"summary,omitempty"`
}

// Summary is the Orchestrator's final report, attached to an
// execution-completed event and also returned directly from execute().
type Summary struct {
	TotalTasks     int           `json:"total_tasks"`
	CompletedTasks int           `json:"completed_tasks"`
	FailedTasks    int           `json:"failed_tasks"`
	TotalSteps     int           `json:"total_steps"`
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	Complexity     string        `json:"complexity"`
}
