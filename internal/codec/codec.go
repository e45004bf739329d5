// Package codec is the sole place in this module allowed to know the wire
// dialect spoken with the oracle: formatting prompts and parsing verdicts
// back out of free-form text. Every other component consumes typed
// schema.Verdict values; none of them parse text.
package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"planloop/internal/schema"
)

// sectionCap is the soft per-section truncation limit from spec §4.1.
const sectionCap = 2048

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// MalformedVerdict is returned when no JSON object could be recovered from
// the oracle's response text at all.
type MalformedVerdict struct {
	Excerpt string
}

func (e *MalformedVerdict) Error() string {
	return fmt.Sprintf("malformed verdict: no JSON object recovered (excerpt: %q)", e.Excerpt)
}

// InvalidSchema is returned when a JSON object was recovered but it
// violates the verdict contract (missing required fields, bad enum value).
type InvalidSchema struct {
	Reason  string
	Excerpt string
}

func (e *InvalidSchema) Error() string {
	return fmt.Sprintf("invalid verdict schema: %s (excerpt: %q)", e.Reason, e.Excerpt)
}

// excerpt truncates s to a diagnostic-sized prefix for embedding in errors.
func excerpt(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// stripFences removes one layer of triple-backtick fencing if present,
// mirroring the teacher's liberal StripFences helper: the oracle is not
// reliable about whether it wraps JSON in a code block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// findBalancedObject scans s for the first balanced `{...}` span, honoring
// string literals and escapes so that braces inside JSON string values
// don't confuse the scan. Returns the span and true, or "" and false if no
// balanced span exists.
func findBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// truncateTail truncates s to the configured cap, keeping the tail, per
// spec §4.1 ("truncation, if needed, keeps the tail") — the same
// head/tail-preserving trade-off the teacher's executor applies to tool
// output (headTail/firstN/lastN in executor.go).
func truncateTail(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	return "…(truncated)…\n" + s[len(s)-cap:]
}

// wireVerdict mirrors schema.Verdict's JSON shape exactly, used only for
// decode/encode within this package.
type wireVerdict struct {
	Status       schema.VerdictStatus  `json:"status"`
	Result       string                `json:"result"`
	LogEntries   []schema.LogEntry     `json:"log_entries"`
	FilesChanged []schema.FileChange   `json:"files_changed,omitempty"`
	NextSteps    []string              `json:"next_steps,omitempty"`
	Error        *schema.VerdictError  `json:"error,omitempty"`
}

// ParseVerdict implements spec §4.1's parseVerdict operation: strip
// fencing, locate the first balanced object, decode, validate.
func ParseVerdict(text string) (*schema.Verdict, error) {
	stripped := stripFences(text)
	span, ok := findBalancedObject(stripped)
	if !ok {
		return nil, &MalformedVerdict{Excerpt: excerpt(text)}
	}

	var w wireVerdict
	if err := json.Unmarshal([]byte(span), &w); err != nil {
		return nil, &MalformedVerdict{Excerpt: excerpt(span)}
	}

	if err := validateVerdict(w); err != nil {
		return nil, &InvalidSchema{Reason: err.Error(), Excerpt: excerpt(span)}
	}

	return &schema.Verdict{
		Status:       w.Status,
		Result:       w.Result,
		LogEntries:   w.LogEntries,
		FilesChanged: w.FilesChanged,
		NextSteps:    w.NextSteps,
		Error:        w.Error,
	}, nil
}

func validateVerdict(w wireVerdict) error {
	switch w.Status {
	case schema.VerdictSuccess, schema.VerdictFailed, schema.VerdictNeedsDebug:
	default:
		return fmt.Errorf("unknown status %q", w.Status)
	}
	if w.LogEntries == nil {
		return fmt.Errorf("log_entries is required")
	}
	if w.Status == schema.VerdictSuccess && strings.TrimSpace(w.Result) == "" {
		return fmt.Errorf("status=success requires a non-empty result")
	}
	if (w.Status == schema.VerdictFailed || w.Status == schema.VerdictNeedsDebug) && w.Error == nil {
		return fmt.Errorf("status=%s requires a non-empty error", w.Status)
	}
	if w.Error != nil && strings.TrimSpace(w.Error.Message) == "" {
		return fmt.Errorf("error.message is required when error is present")
	}
	for _, fc := range w.FilesChanged {
		switch fc.Action {
		case schema.FileCreated, schema.FileModified, schema.FileDeleted:
		default:
			return fmt.Errorf("unknown files_changed action %q", fc.Action)
		}
	}
	return nil
}

// SerializeVerdict renders v as the canonical wire JSON, used by tests that
// check the round-trip property parse(serialize(v)) == v.
func SerializeVerdict(v schema.Verdict) (string, error) {
	w := wireVerdict{
		Status:       v.Status,
		Result:       v.Result,
		LogEntries:   v.LogEntries,
		FilesChanged: v.FilesChanged,
		NextSteps:    v.NextSteps,
		Error:        v.Error,
	}
	if w.LogEntries == nil {
		w.LogEntries = []schema.LogEntry{}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
