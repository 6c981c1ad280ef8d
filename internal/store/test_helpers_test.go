package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/evsync/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot creates a snapshot at the given key with minimal fields.
func createTestSnapshot(semantics, session string, lamport uint64, stream string, offset uint64) ir.Snapshot {
	return ir.Snapshot{
		Semantics: semantics,
		Session:   session,
		Version:   1,
		EventKey:  ir.EventKey{Lamport: ir.Lamport(lamport), Stream: ir.StreamID(stream), Offset: ir.Offset(offset)},
		Offsets:   ir.OffsetMap{ir.StreamID(stream): ir.Offset(offset)},
		State:     json.RawMessage(`{"count":1}`),
	}
}
