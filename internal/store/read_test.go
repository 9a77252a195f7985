package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 0)
	s.BeginRun(ctx, run)
	result := ir.NewList(ir.Int(1), ir.Float(2.5), ir.String("x"), ir.None{})
	s.FinishRun(ctx, "run-1", Outcome{
		Status:       StatusSucceeded,
		FinishedAt:   baseTime.Add(time.Second),
		Result:       result,
		OutputDigest: "d1",
	})

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}

	want := Run{
		ID:           "run-1",
		Program:      run.Program,
		Entry:        "main",
		ProgramHash:  "hash-run-1",
		StartedAt:    baseTime,
		FinishedAt:   baseTime.Add(time.Second),
		Status:       StatusSucceeded,
		Result:       result,
		OutputDigest: "d1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadRun() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() = %v, want sql.ErrNoRows", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, createTestRun("run-a", 0))
	s.BeginRun(ctx, createTestRun("run-c", 2*time.Minute))
	s.BeginRun(ctx, createTestRun("run-b", time.Minute))

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"run-c", "run-b", "run-a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(ListRuns(2)) = %d, want 2", len(limited))
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("ListRuns() = %#v, want empty non-nil slice", runs)
	}
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Parallel branches can reach the sink out of seq order.
	for _, seq := range []int64{3, 1, 2} {
		s.WriteEvent(ctx, createTestEvent("run-1", seq, trace.KindBranchEnd, trace.Fields{"index": seq}))
	}

	events, err := s.ReadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
		// Numbers come back from JSON as float64.
		if n, ok := ev.NumberField("index"); !ok || n != float64(i+1) {
			t.Errorf("events[%d] index = %v, %v", i, n, ok)
		}
		if ev.CorrelationID != "run-1" {
			t.Errorf("events[%d].CorrelationID = %q", i, ev.CorrelationID)
		}
	}
}

func TestReadEvents_RoundTripEnvelope(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent("run-1", 7, trace.KindGenerate, trace.Fields{
		"model":        "gpt-4o-mini",
		"prompt_chars": 42,
	})
	ev.Turn = 3
	ev.Error = "boom"
	s.WriteEvent(ctx, ev)

	events, err := s.ReadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	want := ev
	want.Fields = trace.Fields{"model": "gpt-4o-mini", "prompt_chars": float64(42)}
	if diff := cmp.Diff([]trace.Event{want}, events); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEvents_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("ReadEvents() = %#v, want empty non-nil slice", events)
	}
}

func TestReadEventsByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.WriteEvent(ctx, createTestEvent("run-1", 1, trace.KindFlowStart, trace.Fields{"flow": "main"}))
	s.WriteEvent(ctx, createTestEvent("run-1", 2, trace.KindGenerate, nil))
	s.WriteEvent(ctx, createTestEvent("run-1", 3, trace.KindGenerate, nil))
	s.WriteEvent(ctx, createTestEvent("run-1", 4, trace.KindFlowEnd, trace.Fields{"flow": "main"}))

	events, err := s.ReadEventsByKind(ctx, "run-1", trace.KindGenerate)
	if err != nil {
		t.Fatalf("ReadEventsByKind() failed: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Errorf("ReadEventsByKind() = %+v", events)
	}
}

func TestCountEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	kinds := []trace.Kind{trace.KindFlowStart, trace.KindGenerate, trace.KindGenerate, trace.KindShell, trace.KindFlowEnd}
	for i, k := range kinds {
		s.WriteEvent(ctx, createTestEvent("run-1", int64(i+1), k, nil))
	}
	s.WriteEvent(ctx, createTestEvent("run-2", 1, trace.KindGenerate, nil))

	counts, err := s.CountEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	want := map[trace.Kind]int{
		trace.KindFlowStart: 1,
		trace.KindGenerate:  2,
		trace.KindShell:     1,
		trace.KindFlowEnd:   1,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountEvents() mismatch (-want +got):\n%s", diff)
	}
}

func TestCountRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, createTestRun("run-a", 0))
	s.BeginRun(ctx, createTestRun("run-b", time.Minute))
	s.BeginRun(ctx, createTestRun("run-c", 2*time.Minute))
	s.FinishRun(ctx, "run-a", Outcome{Status: StatusSucceeded, FinishedAt: baseTime})
	s.FinishRun(ctx, "run-b", Outcome{Status: StatusFailed, FinishedAt: baseTime, ErrorKind: "RuntimeError"})

	counts, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatalf("CountRuns() failed: %v", err)
	}
	want := map[RunStatus]int{
		StatusSucceeded: 1,
		StatusFailed:    1,
		StatusRunning:   1,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountRuns() mismatch (-want +got):\n%s", diff)
	}
}
