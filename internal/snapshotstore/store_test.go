package snapshotstore

import (
	"context"
	"testing"

	"planloop/internal/schema"
)

func TestMemStoreSaveThenLoadRoundTrips(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	snap := schema.Snapshot{
		SessionID: "s1",
		Phase:     schema.PhaseExecuting,
		Plan: schema.Plan{
			Tasks: []schema.Task{{ID: "t1", Status: schema.StatusCompleted}},
		},
		Cursor: 1,
	}

	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != "s1" || got.Phase != schema.PhaseExecuting || got.Cursor != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Plan.Tasks) != 1 || got.Plan.Tasks[0].ID != "t1" {
		t.Fatalf("plan not preserved: %+v", got.Plan)
	}
}

func TestMemStoreLoadMissingSessionErrors(t *testing.T) {
	s := NewMemStore()
	if _, err := s.Load(context.Background(), "absent"); err == nil {
		t.Fatal("expected error loading a session that was never saved")
	}
}

func TestMemStoreSaveOverwritesPriorSnapshot(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_ = s.Save(ctx, schema.Snapshot{SessionID: "s1", Cursor: 0})
	_ = s.Save(ctx, schema.Snapshot{SessionID: "s1", Cursor: 5})

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cursor != 5 {
		t.Fatalf("expected latest save to win, got cursor=%d", got.Cursor)
	}
}

func TestMarshalUnmarshalSnapshotRoundTrips(t *testing.T) {
	snap := schema.Snapshot{
		SessionID: "s2",
		Phase:     schema.PhaseFailed,
		Cursor:    2,
	}
	data, err := marshalSnapshot(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := unmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != snap.SessionID || got.Phase != snap.Phase || got.Cursor != snap.Cursor {
		t.Fatalf("got %+v, want %+v", got, snap)
	}
}
