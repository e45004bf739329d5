// Package state implements the sole custodian of mutable session state
// (spec §4.2): the Manager holds the plan, cursor, completed tasks,
// history, aggregated logs, and last-error slot, and exposes only named
// transitions plus read-only LLM-facing views. Grounded on the teacher's
// internal/roles/metaval/metaval.go (tracker/lifecycle bookkeeping) and
// internal/tasklog/tasklog.go (registry-owns-the-log discipline, adapted
// here as statelog.Sink).
package state

import (
	"fmt"
	"sync"
	"time"

	"planloop/internal/schema"
	"planloop/internal/statelog"
)

// defaultHistoryCap is getHistoryForLLM's implementation-chosen cap
// (spec §4.2: "most recent N, implementation-chosen cap, default 20").
const defaultHistoryCap = 20

// InvalidPlan is returned by SetPlan when the proposed plan violates an
// invariant (duplicate identifiers, dangling dependency, or a cycle that
// survives normalization).
type InvalidPlan struct {
	Reason string
}

func (e *InvalidPlan) Error() string { return fmt.Sprintf("invalid plan: %s", e.Reason) }

// InvariantViolation is a caller bug, not a retry case (spec §7): e.g.
// recording success for a task that is not the current one, or attempting
// a transition after the session has gone terminal.
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("state: invariant violation in %s: %s", e.Op, e.Reason)
}

// Manager is the one-per-Orchestrator owner of a session's mutable state.
// All mutation goes through its named methods; readers that need a
// point-in-time copy should call Export, which deep-copies.
type Manager struct {
	mu sync.Mutex

	sessionID string
	plan      schema.Plan
	hasPlan   bool
	cursor    int
	phase     schema.Phase
	completed []schema.Task
	lastError string
	debugMode bool
	createdAt time.Time
	updatedAt time.Time
	nextSteps []string

	log *statelog.Sink
}

// New constructs an idle Manager for sessionID. The phase starts at idle;
// "planning" (spec §3's phase enum) describes the Orchestrator's state
// before a Manager exists at all — the Orchestrator emits
// planning-started itself and only constructs the Manager once a plan is
// in hand, so the Manager itself never observes that phase.
func New(sessionID string) *Manager {
	now := time.Now()
	return &Manager{
		sessionID: sessionID,
		phase:     schema.PhaseIdle,
		createdAt: now,
		updatedAt: now,
		log:       statelog.New(),
	}
}

// WithLog replaces the Manager's log sink, e.g. to mirror to a JSONL file.
func (m *Manager) WithLog(sink *statelog.Sink) *Manager {
	m.log = sink
	return m
}

func (m *Manager) touch() { m.updatedAt = time.Now() }

// SetPlan accepts an ordered task list once. Rejects calls after
// startExecution. Validates identifier uniqueness and dependency
// acyclicity — the Planner is expected to have already normalized the
// plan (spec §4.3), so this is a defense-in-depth check, not the primary
// validation path.
func (m *Manager) SetPlan(plan schema.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != schema.PhaseIdle {
		return &InvariantViolation{Op: "SetPlan", Reason: "plan already set or execution started"}
	}
	if len(plan.Tasks) == 0 {
		return &InvalidPlan{Reason: "plan has no tasks"}
	}

	seen := make(map[string]bool, len(plan.Tasks))
	for i, t := range plan.Tasks {
		if t.ID == "" {
			return &InvalidPlan{Reason: fmt.Sprintf("task at index %d has empty id", i)}
		}
		if seen[t.ID] {
			return &InvalidPlan{Reason: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		seen[t.ID] = true
	}
	for _, t := range plan.Tasks {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return &InvalidPlan{Reason: fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep)}
			}
		}
	}
	if err := checkTopologicalOrder(plan.Tasks); err != nil {
		return &InvalidPlan{Reason: err.Error()}
	}

	for i := range plan.Tasks {
		plan.Tasks[i].Status = schema.StatusPending
	}
	m.plan = plan
	m.hasPlan = true
	m.touch()
	return nil
}

// checkTopologicalOrder rejects a plan whose list order is not consistent
// with its dependency DAG — every dependency must appear earlier in the
// list than its dependent (spec §3 Plan invariant).
func checkTopologicalOrder(tasks []schema.Task) error {
	position := make(map[string]int, len(tasks))
	for i, t := range tasks {
		position[t.ID] = i
	}
	for i, t := range tasks {
		for _, dep := range t.Dependencies {
			if position[dep] >= i {
				return fmt.Errorf("task %q lists dependency %q that does not precede it in plan order", t.ID, dep)
			}
		}
	}
	return nil
}

// StartExecution transitions phase idle->executing and sets cursor to 0.
func (m *Manager) StartExecution() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPlan {
		return &InvariantViolation{Op: "StartExecution", Reason: "no plan set"}
	}
	if m.phase != schema.PhaseIdle {
		return &InvariantViolation{Op: "StartExecution", Reason: fmt.Sprintf("cannot start from phase %s", m.phase)}
	}
	m.phase = schema.PhaseExecuting
	m.cursor = 0
	m.touch()
	return nil
}

// GetCurrentTask returns the task at cursor, or false if the plan is
// exhausted.
func (m *Manager) GetCurrentTask() (schema.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor >= len(m.plan.Tasks) {
		return schema.Task{}, false
	}
	return m.plan.Tasks[m.cursor], true
}

func (m *Manager) taskIndex(taskID string) int {
	for i, t := range m.plan.Tasks {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

func (m *Manager) assertCurrent(op, taskID string) (int, error) {
	if m.phase == schema.PhaseCompleted || m.phase == schema.PhaseFailed {
		return -1, &InvariantViolation{Op: op, Reason: fmt.Sprintf("session already terminal (%s)", m.phase)}
	}
	if m.cursor >= len(m.plan.Tasks) {
		return -1, &InvariantViolation{Op: op, Reason: "no current task: plan exhausted"}
	}
	current := m.plan.Tasks[m.cursor]
	if current.ID != taskID {
		return -1, &InvariantViolation{Op: op, Reason: fmt.Sprintf("taskID %q does not match current task %q", taskID, current.ID)}
	}
	return m.cursor, nil
}

func summarize(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// RecordSuccess asserts taskID equals the current task, marks it
// completed, appends the verdict's log entries, pushes a completed
// history entry, and clears the last-error slot and debug-mode flag.
func (m *Manager) RecordSuccess(taskID string, verdict schema.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.assertCurrent("RecordSuccess", taskID)
	if err != nil {
		return err
	}
	if m.plan.Tasks[idx].Status == schema.StatusCompleted || m.plan.Tasks[idx].Status == schema.StatusFailed {
		return &InvariantViolation{Op: "RecordSuccess", Reason: fmt.Sprintf("task %q is already terminal (%s)", taskID, m.plan.Tasks[idx].Status)}
	}

	now := time.Now()
	m.plan.Tasks[idx].Status = schema.StatusCompleted
	m.plan.Tasks[idx].Result = verdict.Result
	m.plan.Tasks[idx].FinishedAt = now
	if m.plan.Tasks[idx].StartedAt.IsZero() {
		m.plan.Tasks[idx].StartedAt = now
	}
	m.completed = append(m.completed, m.plan.Tasks[idx])

	m.log.AppendLog(verdict.LogEntries...)
	m.log.AppendHistory(schema.HistoryEntry{
		TaskID:    taskID,
		Status:    schema.HistoryCompleted,
		Summary:   summarize(verdict.Result, 200),
		Iteration: 0,
	})

	m.lastError = ""
	m.debugMode = false
	m.nextSteps = append([]string(nil), verdict.NextSteps...)
	m.touch()
	return nil
}

// RecordDebug has the same effect as RecordSuccess, except the pushed
// history entry carries status=debug — used when the successful verdict
// arrived after at least one debug attempt, so downstream prompt context
// still shows a clean "completed" task but the LLM-facing history can
// distinguish a first-try success from a recovered one.
func (m *Manager) RecordDebug(taskID string, verdict schema.Verdict, iteration int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.assertCurrent("RecordDebug", taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	m.plan.Tasks[idx].Status = schema.StatusCompleted
	m.plan.Tasks[idx].Result = verdict.Result
	m.plan.Tasks[idx].FinishedAt = now
	if m.plan.Tasks[idx].StartedAt.IsZero() {
		m.plan.Tasks[idx].StartedAt = now
	}
	m.completed = append(m.completed, m.plan.Tasks[idx])

	m.log.AppendLog(verdict.LogEntries...)
	m.log.AppendHistory(schema.HistoryEntry{
		TaskID:    taskID,
		Status:    schema.HistoryDebug,
		Summary:   summarize(verdict.Result, 200),
		Iteration: iteration,
	})

	m.lastError = ""
	m.debugMode = false
	m.nextSteps = append([]string(nil), verdict.NextSteps...)
	m.touch()
	return nil
}

// RecordFailure asserts taskID equals the current task, writes the
// last-error slot, and pushes a failed history entry. It does not advance
// the cursor — a failed prerequisite must not let dependents run. A task
// already marked failed may be recorded as failed again (the Task Runner
// does so on every failed debug attempt); a completed task is rejected.
func (m *Manager) RecordFailure(taskID string, verr schema.VerdictError, iteration int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.assertCurrent("RecordFailure", taskID)
	if err != nil {
		return err
	}
	if m.plan.Tasks[idx].Status == schema.StatusCompleted {
		return &InvariantViolation{Op: "RecordFailure", Reason: fmt.Sprintf("task %q is already completed", taskID)}
	}

	m.plan.Tasks[idx].Status = schema.StatusFailed
	m.plan.Tasks[idx].Error = verr.Message
	m.lastError = verr.Message

	m.log.AppendHistory(schema.HistoryEntry{
		TaskID:    taskID,
		Status:    schema.HistoryFailed,
		Summary:   summarize(verr.Message, 200),
		Iteration: iteration,
	})

	m.touch()
	return nil
}

// EnterDebugMode sets the debug-mode flag. The Task Runner is responsible
// for routing the eventual success through RecordDebug rather than
// RecordSuccess while this flag is set.
func (m *Manager) EnterDebugMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMode = true
	m.touch()
}

// DebugMode reports whether the session is currently in a debug attempt
// for the task at cursor.
func (m *Manager) DebugMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugMode
}

// NextStep asserts the current task is completed, advances the cursor,
// and returns true if more tasks remain. If the plan is exhausted, phase
// transitions to completed and NextStep returns false.
func (m *Manager) NextStep() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == schema.PhaseFailed {
		return false, &InvariantViolation{Op: "NextStep", Reason: "session already terminal (failed)"}
	}
	if m.cursor >= len(m.plan.Tasks) {
		return false, &InvariantViolation{Op: "NextStep", Reason: "plan already exhausted"}
	}
	if m.plan.Tasks[m.cursor].Status != schema.StatusCompleted {
		return false, &InvariantViolation{Op: "NextStep", Reason: "current task is not completed"}
	}

	m.cursor++
	m.touch()
	if m.cursor >= len(m.plan.Tasks) {
		m.phase = schema.PhaseCompleted
		return false, nil
	}
	return true, nil
}

// MarkFailed is terminal: phase->failed, last-error set to reason. After
// this call SetPlan, StartExecution, RecordSuccess, RecordDebug,
// RecordFailure, NextStep and MarkFailed all return an InvariantViolation.
func (m *Manager) MarkFailed(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == schema.PhaseCompleted || m.phase == schema.PhaseFailed {
		return &InvariantViolation{Op: "MarkFailed", Reason: fmt.Sprintf("session already terminal (%s)", m.phase)}
	}
	m.phase = schema.PhaseFailed
	m.lastError = reason
	m.touch()
	return nil
}

// Phase returns the current session phase.
func (m *Manager) Phase() schema.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Cursor returns the current cursor position.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// CompletedTasks returns a copy of the ordered completed-task list.
func (m *Manager) CompletedTasks() []schema.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.Task, len(m.completed))
	copy(out, m.completed)
	return out
}

// GetLastStepResult returns the result of the most recently completed
// task, for use in constructing the next task's prompt (spec §8
// invariant 4: context monotonicity).
func (m *Manager) GetLastStepResult() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.completed) == 0 {
		return "", false
	}
	return m.completed[len(m.completed)-1].Result, true
}

// GetAdvisoryNextSteps returns the most recently completed task's
// next_steps hints, stored as advisory context only — per spec §4.4
// "Ordering & tie-breaks", these never alter the plan itself.
func (m *Manager) GetAdvisoryNextSteps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.nextSteps))
	copy(out, m.nextSteps)
	return out
}

// GetLastError returns the current last-error slot and whether it is set.
func (m *Manager) GetLastError() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError, m.lastError != ""
}

// GetHistoryForLLM returns the bounded, most-recent-N view of history
// entries suitable for prompt inclusion (spec §4.2, default cap 20).
func (m *Manager) GetHistoryForLLM() []schema.HistoryEntry {
	return m.log.RecentHistory(defaultHistoryCap)
}

// GetAllLogEntries returns the full aggregated, append-only log list
// (spec §7: "All intermediate detail is available ... via
// getAllLogEntries").
func (m *Manager) GetAllLogEntries() []schema.LogEntry {
	return m.log.Logs()
}

// Export produces an immutable deep copy of the session state in the
// stable, language-neutral shape spec §6 defines.
func (m *Manager) Export() schema.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]schema.Task, len(m.plan.Tasks))
	copy(tasks, m.plan.Tasks)
	completed := make([]schema.Task, len(m.completed))
	copy(completed, m.completed)
	for i := range tasks {
		tasks[i].Dependencies = append([]string(nil), tasks[i].Dependencies...)
	}
	for i := range completed {
		completed[i].Dependencies = append([]string(nil), completed[i].Dependencies...)
	}

	return schema.Snapshot{
		SessionID: m.sessionID,
		Phase:     m.phase,
		Cursor:    m.cursor,
		Plan:      schema.Plan{Tasks: tasks, Complexity: m.plan.Complexity, Reordered: m.plan.Reordered},
		Completed: completed,
		History:   m.log.History(),
		Logs:      m.log.Logs(),
		LastError: m.lastError,
		DebugMode: m.debugMode,
		CreatedAt: m.createdAt,
		UpdatedAt: m.updatedAt,
	}
}

// Import reconstructs a Manager whose subsequent transitions are
// observationally identical to the exporting Manager's (spec §8
// invariant 7: snapshot round-trip).
func Import(snap schema.Snapshot) *Manager {
	m := &Manager{
		sessionID: snap.SessionID,
		plan:      snap.Plan,
		hasPlan:   len(snap.Plan.Tasks) > 0,
		cursor:    snap.Cursor,
		phase:     snap.Phase,
		lastError: snap.LastError,
		debugMode: snap.DebugMode,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
		log:       statelog.New(),
	}
	m.completed = make([]schema.Task, len(snap.Completed))
	copy(m.completed, snap.Completed)
	m.log.AppendLog(snap.Logs...)
	for _, h := range snap.History {
		m.log.AppendHistory(h)
	}
	return m
}
