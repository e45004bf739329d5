// Package schema defines the data model shared by every component of the
// orchestration core: Task, Plan, Verdict, LogEntry, HistoryEntry, and
// SessionState. No component outside internal/codec and internal/state
// mutates these values directly — they are passed around as read-only
// snapshots once constructed.
package schema

import "time"

// Status is a Task's position in its lifecycle: pending -> in-progress ->
// (completed | failed). state.Manager guards these transitions against its
// own cursor/terminal-state bookkeeping rather than through a method on
// Status; a task marked failed by a failed attempt moves to completed when
// a later debug attempt succeeds (state.Manager.RecordDebug). in-progress is
// reserved for a future Task Runner heartbeat and is not yet assigned by
// any component.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is the unit of work the Planner produces and the Task Runner settles.
type Task struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Status            Status    `json:"status"`
	Dependencies      []string  `json:"dependencies"`
	RequiresDocSearch bool      `json:"requires_doc_search"`
	Result            string    `json:"result,omitempty"`
	Error             string    `json:"error,omitempty"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
}

// Plan is an ordered, fixed sequence of tasks. Once accepted by
// state.Manager it is immutable for the life of the session.
type Plan struct {
	Tasks      []Task `json:"tasks"`
	Complexity string `json:"complexity"` // "simple" | "moderate" | "complex"
	// Reordered records whether the planner's normalize step had to
	// topologically re-sort the oracle's task list (see planner.normalize).
	Reordered bool `json:"reordered"`
}

// LogLevel is a Log Entry's severity, as reported by the oracle.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is a structured record emitted by the oracle as part of a
// Verdict. The aggregate log list is append-only across a session.
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStatus is the outcome a History Entry records for a prior step.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
	HistoryDebug     HistoryStatus = "debug"
)

// HistoryEntry is a compact, LLM-facing record of a prior task's outcome.
type HistoryEntry struct {
	TaskID    string        `json:"task_id"`
	Status    HistoryStatus `json:"status"`
	Summary   string        `json:"summary"` // <=200 chars, derived from result or error
	Iteration int           `json:"iteration"`
}

// VerdictStatus is the oracle's per-task reply classification.
type VerdictStatus string

const (
	VerdictSuccess    VerdictStatus = "success"
	VerdictFailed     VerdictStatus = "failed"
	VerdictNeedsDebug VerdictStatus = "needs-debug"
)

// FileChangeAction classifies one entry of Verdict.FilesChanged.
type FileChangeAction string

const (
	FileCreated  FileChangeAction = "created"
	FileModified FileChangeAction = "modified"
	FileDeleted  FileChangeAction = "deleted"
)

// FileChange is an advisory record of a file the oracle says it touched.
// The core never verifies this; it is carried through for observers only.
type FileChange struct {
	Path   string           `json:"path"`
	Action FileChangeAction `json:"action"`
}

// VerdictError carries the error detail required on failed/needs-debug
// verdicts.
type VerdictError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
}

// Verdict is the oracle's structured reply to one task-runner attempt.
type Verdict struct {
	Status       VerdictStatus `json:"status"`
	Result       string        `json:"result"`
	LogEntries   []LogEntry    `json:"log_entries"`
	FilesChanged []FileChange  `json:"files_changed,omitempty"`
	NextSteps    []string      `json:"next_steps,omitempty"`
	Error        *VerdictError `json:"error,omitempty"`
}

// Phase is the Session State's top-level lifecycle stage.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseFailed    Phase = "failed"
	PhaseCompleted Phase = "completed"
)

// ApprovalVerdict is the decision an Approval Gate callback returns.
type ApprovalVerdict string

const (
	ApprovalApprove ApprovalVerdict = "approve"
	ApprovalReject  ApprovalVerdict = "reject"
	ApprovalModify  ApprovalVerdict = "modify"
)

// RiskLevel classifies a task-level approval request.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ApprovalRequestKind discriminates the two Approval Request variants in
// spec §3: plan-level and task-level.
type ApprovalRequestKind string

const (
	ApprovalKindPlan ApprovalRequestKind = "plan"
	ApprovalKindTask ApprovalRequestKind = "task"
)

// ApprovalRequest carries whichever fields are relevant to its Kind. Plan
// approval populates Plan and UserRequest; task approval populates Task,
// Risk, and optionally Context.
type ApprovalRequest struct {
	Kind        ApprovalRequestKind `json:"kind"`
	Plan        *Plan               `json:"plan,omitempty"`
	UserRequest string              `json:"user_request,omitempty"`
	Task        *Task               `json:"task,omitempty"`
	Risk        RiskLevel           `json:"risk,omitempty"`
	Context     string              `json:"context,omitempty"`
}

// Snapshot is the stable, language-neutral export format defined in spec §6:
// {sessionId, phase, cursor, plan, completed, history, logs, lastError,
// debugMode, createdAt, updatedAt}.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Phase     Phase          `json:"phase"`
	Cursor    int            `json:"cursor"`
	Plan      Plan           `json:"plan"`
	Completed []Task         `json:"completed"`
	History   []HistoryEntry `json:"history"`
	Logs      []LogEntry     `json:"logs"`
	LastError string         `json:"last_error,omitempty"`
	DebugMode bool           `json:"debug_mode"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
