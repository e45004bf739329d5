package codec

import (
	"fmt"
	"strings"

	"planloop/internal/schema"
)

// TaskView is the snapshot the Task Runner builds from the State Manager
// before each oracle call (spec §4.4 "Per-attempt actions", step 1).
type TaskView struct {
	Task           schema.Task
	LastStepResult string // "" if none
	DebugMode      bool
	LastError      string // only rendered when DebugMode
	History        []schema.HistoryEntry
	AdvisoryHints  []string // prior task's next_steps, advisory only
	RepeatNotice   bool     // true when the oracle repeated its last attempt verbatim
}

// FormatTaskPrompt implements spec §4.1's formatTaskPrompt operation: a
// fixed-order labeled-section textual dump. Order is current task, then
// prior context, then error log (iff in debug), then history — so that
// the most recent history entries remain closest to the oracle's recency
// window regardless of how long the rest of the prompt runs.
func FormatTaskPrompt(v TaskView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Current Task\nID: %s\nTitle: %s\nDescription:\n%s\n",
		v.Task.ID, v.Task.Title, truncateTail(v.Task.Description, sectionCap))
	if v.Task.RequiresDocSearch {
		b.WriteString("Requires doc search: true\n")
	}

	if v.LastStepResult != "" {
		fmt.Fprintf(&b, "\n## Prior Step Result\n%s\n", truncateTail(v.LastStepResult, sectionCap))
	}

	if v.DebugMode && v.LastError != "" {
		fmt.Fprintf(&b, "\n## Error Log (debug mode)\n%s\n", truncateTail(v.LastError, sectionCap))
	}

	if v.RepeatNotice {
		b.WriteString("\n## Notice\nYou repeated your last attempt verbatim. Try a different approach.\n")
	}

	if len(v.AdvisoryHints) > 0 {
		b.WriteString("\n## Hints From Prior Task\n")
		for _, h := range v.AdvisoryHints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	if len(v.History) > 0 {
		b.WriteString("\n## History\n")
		var hb strings.Builder
		for _, h := range v.History {
			fmt.Fprintf(&hb, "- [%s] task=%s iteration=%d: %s\n", h.Status, h.TaskID, h.Iteration, h.Summary)
		}
		b.WriteString(truncateTail(hb.String(), sectionCap))
	}

	return b.String()
}
