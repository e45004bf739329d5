package statelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planloop/internal/schema"
)

func TestNilSinkIsNoOp(t *testing.T) {
	var s *Sink
	s.AppendLog(schema.LogEntry{Message: "x"})
	s.AppendHistory(schema.HistoryEntry{TaskID: "t1"})
	if got := s.Logs(); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
	if got := s.History(); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendLogIsPrefixStable(t *testing.T) {
	s := New()
	s.AppendLog(schema.LogEntry{Message: "first"})
	snapshot1 := s.Logs()
	s.AppendLog(schema.LogEntry{Message: "second"})
	snapshot2 := s.Logs()

	if len(snapshot1) != 1 || len(snapshot2) != 2 {
		t.Fatalf("got lens %d, %d", len(snapshot1), len(snapshot2))
	}
	if snapshot2[0].Message != snapshot1[0].Message {
		t.Fatalf("earlier snapshot is not a prefix of the later one")
	}
}

func TestRecentHistoryCapsAndOrders(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.AppendHistory(schema.HistoryEntry{TaskID: "t", Iteration: i})
	}
	recent := s.RecentHistory(2)
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].Iteration != 3 || recent[1].Iteration != 4 {
		t.Fatalf("got %+v", recent)
	}
}

func TestNewWithFileMirrorsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	s, err := NewWithFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.AppendLog(schema.LogEntry{Message: "hello"})
	s.AppendHistory(schema.HistoryEntry{TaskID: "t1"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
}
