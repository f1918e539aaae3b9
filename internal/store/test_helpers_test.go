package store

import (
	"path/filepath"
	"testing"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// createTestStore opens a fresh database under t.TempDir().
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

// stops builds a densely numbered snapshot: stops(1, "a", "b") puts a and b on day 1.
func stops(day int, ids ...string) itinerary.Snapshot {
	out := make(itinerary.Snapshot, len(ids))
	for i, id := range ids {
		out[i] = itinerary.Stop{EntityID: id, Day: day, OrderIndex: i}
	}
	return out
}
