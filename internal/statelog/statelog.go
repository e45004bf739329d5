// Package statelog is the nil-safe, append-only sink backing the State
// Manager's aggregated log list (spec §3 "Log Entry", §8 invariant 5
// "log append-only"). Adapted from the teacher's internal/tasklog: a
// Registry owns the on-disk file handle exclusively, and every writer
// method tolerates a nil receiver so callers never need a liveness check
// before logging.
package statelog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"planloop/internal/schema"
)

// Sink accumulates a session's LogEntry and HistoryEntry values in memory,
// optionally mirroring each append to a JSONL file. A nil *Sink is valid:
// every method is a no-op / zero-value return on a nil receiver, matching
// tasklog.go's discipline so callers never have to guard every call site.
type Sink struct {
	mu      sync.Mutex
	logs    []schema.LogEntry
	history []schema.HistoryEntry
	file    *os.File
}

// New returns an empty in-memory Sink.
func New() *Sink {
	return &Sink{}
}

// record is the on-disk JSONL shape; logs and history entries share a file
// so that replaying one JSONL gives a caller the full session narrative in
// emission order.
type record struct {
	Kind    string               `json:"kind"` // "log" | "history"
	Log     *schema.LogEntry     `json:"log,omitempty"`
	History *schema.HistoryEntry `json:"history,omitempty"`
}

// NewWithFile opens path for append and returns a Sink that mirrors every
// AppendLog/AppendHistory call to it as one JSON line, mirroring
// tasklog.Registry's sole-owner-of-the-file-handle discipline.
func NewWithFile(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("statelog: open %s: %w", path, err)
	}
	return &Sink{file: f}, nil
}

// Close releases the underlying file handle, if any. Safe to call on a nil
// Sink or a Sink with no backing file.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// AppendLog appends entries to the aggregate log list in order. No-op on
// a nil Sink.
func (s *Sink) AppendLog(entries ...schema.LogEntry) {
	if s == nil || len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entries...)
	for _, e := range entries {
		s.write(record{Kind: "log", Log: &e})
	}
}

// AppendHistory appends one history entry. No-op on a nil Sink.
func (s *Sink) AppendHistory(entry schema.HistoryEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	s.write(record{Kind: "history", History: &entry})
}

// Logs returns a copy of the aggregate log list (spec §8 invariant 5:
// callers observe a prefix-stable list across time).
func (s *Sink) Logs() []schema.LogEntry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// History returns a copy of the full history list, oldest first.
func (s *Sink) History() []schema.HistoryEntry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// RecentHistory returns at most n of the most recent history entries,
// oldest first within that window — the bounded view spec §4.2's
// getHistoryForLLM exposes.
func (s *Sink) RecentHistory(n int) []schema.HistoryEntry {
	if s == nil || n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.history) {
		n = len(s.history)
	}
	start := len(s.history) - n
	out := make([]schema.HistoryEntry, n)
	copy(out, s.history[start:])
	return out
}

// write appends one JSON line to the backing file, if any. Caller holds
// s.mu. Marshal and write failures are silently ignored — statelog never
// fails a caller's logical operation because the disk mirror is
// best-effort.
func (s *Sink) write(r record) {
	if s.file == nil {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = s.file.Write(b)
}
