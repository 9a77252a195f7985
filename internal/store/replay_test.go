package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/cognos/internal/trace"
)

func TestGetRunState_Complete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, createTestRun("run-1", 0))
	events := []struct {
		kind   trace.Kind
		fields trace.Fields
	}{
		{trace.KindFlowStart, trace.Fields{"flow": "main"}},
		{trace.KindGenerate, nil},
		{trace.KindFlowStart, trace.Fields{"flow": "helper"}},
		{trace.KindToolExec, trace.Fields{"tool": "shell"}},
		{trace.KindFlowEnd, trace.Fields{"flow": "helper"}},
		{trace.KindFutureCreated, trace.Fields{"future": "f1"}},
		{trace.KindFutureResolved, trace.Fields{"future": "f1", "outcome": "completed"}},
		{trace.KindGenerate, nil},
		{trace.KindFlowEnd, trace.Fields{"flow": "main"}},
	}
	for i, e := range events {
		s.WriteEvent(ctx, createTestEvent("run-1", int64(i+1), e.kind, e.fields))
	}
	s.FinishRun(ctx, "run-1", Outcome{Status: StatusSucceeded})

	state, err := s.GetRunState(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRunState() failed: %v", err)
	}

	if !state.IsComplete {
		t.Errorf("IsComplete = false, open=%v pending=%v", state.OpenFlows, state.PendingFutures)
	}
	if state.LastSeq != 9 {
		t.Errorf("LastSeq = %d, want 9", state.LastSeq)
	}
	if state.Generations != 2 {
		t.Errorf("Generations = %d, want 2", state.Generations)
	}
	if state.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", state.ToolCalls)
	}
	if len(state.Events) != len(events) {
		t.Errorf("len(Events) = %d, want %d", len(state.Events), len(events))
	}
}

func TestGetRunState_Interrupted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, createTestRun("run-1", 0))
	s.WriteEvent(ctx, createTestEvent("run-1", 1, trace.KindFlowStart, trace.Fields{"flow": "main"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 2, trace.KindFutureCreated, trace.Fields{"future": "f1"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 3, trace.KindFutureCreated, trace.Fields{"future": "f2"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 4, trace.KindFlowStart, trace.Fields{"flow": "work"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 5, trace.KindFutureCancelled, trace.Fields{"future": "f1"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 6, trace.KindError, trace.Fields{"category": "RuntimeError"}))

	state, err := s.GetRunState(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRunState() failed: %v", err)
	}

	if state.IsComplete {
		t.Error("IsComplete = true for a run that never finished")
	}
	if diff := cmp.Diff([]string{"main", "work"}, state.OpenFlows); diff != "" {
		t.Errorf("OpenFlows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f2"}, state.PendingFutures); diff != "" {
		t.Errorf("PendingFutures mismatch (-want +got):\n%s", diff)
	}
	if state.Errors != 1 {
		t.Errorf("Errors = %d, want 1", state.Errors)
	}
}

func TestGetRunState_InterleavedFlowEnds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Two parallel branches call the same flow; ends arrive in either order.
	s.BeginRun(ctx, createTestRun("run-1", 0))
	s.WriteEvent(ctx, createTestEvent("run-1", 1, trace.KindFlowStart, trace.Fields{"flow": "main"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 2, trace.KindFlowStart, trace.Fields{"flow": "fetch"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 3, trace.KindFlowStart, trace.Fields{"flow": "fetch"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 4, trace.KindFlowEnd, trace.Fields{"flow": "fetch"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 5, trace.KindFlowEnd, trace.Fields{"flow": "fetch"}))

	state, err := s.GetRunState(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRunState() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"main"}, state.OpenFlows); diff != "" {
		t.Errorf("OpenFlows mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRunState_NotFound(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.GetRunState(context.Background(), "missing"); err == nil {
		t.Fatal("GetRunState() for unknown run succeeded")
	}
}

func TestFindIncompleteRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, createTestRun("run-done", 0))
	s.FinishRun(ctx, "run-done", Outcome{Status: StatusSucceeded})
	s.BeginRun(ctx, createTestRun("run-late", 2*time.Minute))
	s.BeginRun(ctx, createTestRun("run-early", time.Minute))
	s.BeginRun(ctx, createTestRun("run-failed", 3*time.Minute))
	s.FinishRun(ctx, "run-failed", Outcome{Status: StatusFailed})

	runs, err := s.FindIncompleteRuns(ctx)
	if err != nil {
		t.Fatalf("FindIncompleteRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"run-early", "run-late"}, ids); diff != "" {
		t.Errorf("FindIncompleteRuns() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("GetLastSeq() on empty = %d, want 0", seq)
	}

	s.WriteEvent(ctx, createTestEvent("run-1", 5, trace.KindIO, nil))
	s.WriteEvent(ctx, createTestEvent("run-1", 12, trace.KindIO, nil))
	s.WriteEvent(ctx, createTestEvent("run-2", 40, trace.KindIO, nil))

	seq, _ = s.GetLastSeq(ctx, "run-1")
	if seq != 12 {
		t.Errorf("GetLastSeq() = %d, want 12", seq)
	}
}

func TestFindRunsByDigest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		s.BeginRun(ctx, createTestRun(id, time.Duration(i)*time.Minute))
	}
	s.FinishRun(ctx, "run-1", Outcome{Status: StatusSucceeded, OutputDigest: "same"})
	s.FinishRun(ctx, "run-2", Outcome{Status: StatusSucceeded, OutputDigest: "other"})
	s.FinishRun(ctx, "run-3", Outcome{Status: StatusSucceeded, OutputDigest: "same"})

	runs, err := s.FindRunsByDigest(ctx, "same")
	if err != nil {
		t.Fatalf("FindRunsByDigest() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" || runs[1].ID != "run-3" {
		t.Errorf("FindRunsByDigest() = %+v", runs)
	}

	none, _ := s.FindRunsByDigest(ctx, "")
	if len(none) != 0 {
		t.Errorf("empty digest matched %d runs", len(none))
	}
}
