package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/timeline/internal/timeline"
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

// pragma returns the current value of a pragma as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}

// hasIndex reports whether the named index exists.
func (s *Store) hasIndex(t *testing.T, name string) bool {
	t.Helper()
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("query index %s: %v", name, err)
	}
	return n == 1
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string) Run {
	return Run{
		ID:       id,
		Scenario: "test-scenario",
		TreeHash: "test-hash",
		Source:   "name: test-scenario\n",
	}
}

// createTestEvent creates a trace event.
func createTestEvent(seq uint64, at int64, kind timeline.EventKind, element string) timeline.TraceEvent {
	return timeline.TraceEvent{
		Seq:     seq,
		At:      time.Duration(at),
		Kind:    kind,
		Handle:  seq,
		Element: element,
		Type:    "function",
	}
}
