// Package snapshotstore is an external, optional helper for persisting
// state.Manager snapshots between process runs. It is not imported by
// the orchestration core itself: spec §1 Non-goals rule out "persistent
// resume across process restarts beyond exporting/importing a state
// snapshot", so this package exists purely as a caller-side convenience
// built on top of the core's own Export/Import contract (spec §6 "State
// snapshot format").
package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"planloop/internal/schema"
)

// Store persists and retrieves Snapshot values keyed by session ID.
type Store interface {
	Save(ctx context.Context, snap schema.Snapshot) error
	Load(ctx context.Context, sessionID string) (schema.Snapshot, error)
}

// MemStore is the default, in-process Store used by tests and the demo
// binary when no external store is configured.
type MemStore struct {
	mu   sync.Mutex
	data map[string]schema.Snapshot
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]schema.Snapshot)}
}

// Save implements Store.
func (s *MemStore) Save(ctx context.Context, snap schema.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.SessionID] = snap
	return nil
}

// Load implements Store.
func (s *MemStore) Load(ctx context.Context, sessionID string) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[sessionID]
	if !ok {
		return schema.Snapshot{}, fmt.Errorf("snapshotstore: no snapshot for session %q", sessionID)
	}
	return snap, nil
}

// marshalSnapshot and unmarshalSnapshot are shared by every Store
// implementation that serializes to a byte-oriented backend (e.g. Redis).
func marshalSnapshot(snap schema.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func unmarshalSnapshot(b []byte) (schema.Snapshot, error) {
	var snap schema.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return schema.Snapshot{}, err
	}
	return snap, nil
}
