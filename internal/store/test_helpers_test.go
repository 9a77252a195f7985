package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cognos/internal/trace"
)

// baseTime anchors every timestamp written by the tests.
var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

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

// createTestRun creates a run descriptor with minimal required fields.
func createTestRun(id string, offset time.Duration) Run {
	return Run{
		ID:          id,
		Program:     "examples/" + id + ".cg",
		Entry:       "main",
		ProgramHash: "hash-" + id,
		StartedAt:   baseTime.Add(offset),
	}
}

// createTestEvent creates an event for run id at seq.
func createTestEvent(runID string, seq int64, kind trace.Kind, fields trace.Fields) trace.Event {
	return trace.Event{
		Kind:          kind,
		TS:            baseTime.Add(time.Duration(seq) * time.Millisecond),
		ElapsedMS:     seq,
		Seq:           seq,
		CorrelationID: runID,
		Fields:        fields,
	}
}
