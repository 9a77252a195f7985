package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/queryir"
	"github.com/roach88/cognos/internal/trace"
)

// seedQueryRuns writes three runs: a succeeded, b failed, c still running.
func seedQueryRuns(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := s.BeginRun(ctx, createTestRun(id, time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", id, err)
		}
	}
	if err := s.FinishRun(ctx, "run-a", Outcome{Status: StatusSucceeded, FinishedAt: baseTime.Add(time.Second)}); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	if err := s.FinishRun(ctx, "run-b", Outcome{Status: StatusFailed, FinishedAt: baseTime.Add(time.Minute + time.Second), ErrorKind: "RuntimeError"}); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
}

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestQueryRuns(t *testing.T) {
	s := createTestStore(t)
	seedQueryRuns(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter queryir.Predicate
		limit  int
		want   []string
	}{
		{"no filter", nil, 0, []string{"run-c", "run-b", "run-a"}},
		{"limit", nil, 2, []string{"run-c", "run-b"}},
		{"status", &queryir.Equals{Field: "status", Value: ir.String("failed")}, 0, []string{"run-b"}},
		{"status set", &queryir.OneOf{Field: "status", Values: []ir.Value{ir.String("succeeded"), ir.String("running")}}, 0, []string{"run-c", "run-a"}},
		{"started since", &queryir.Since{Field: "started_at", Time: baseTime.Add(30 * time.Second)}, 0, []string{"run-c", "run-b"}},
		{"finished since skips unfinished", &queryir.Since{Field: "finished_at", Time: baseTime}, 0, []string{"run-b", "run-a"}},
		{"conjunction", queryir.Where(
			&queryir.Equals{Field: "entry", Value: ir.String("main")},
			&queryir.Equals{Field: "error_kind", Value: ir.String("RuntimeError")},
		), 0, []string{"run-b"}},
		{"no match", &queryir.Equals{Field: "program", Value: ir.String("missing.cg")}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.QueryRuns(ctx, tt.filter, tt.limit)
			if err != nil {
				t.Fatalf("QueryRuns() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, runIDs(runs)); diff != "" {
				t.Errorf("QueryRuns() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueryRuns_InvalidFilter(t *testing.T) {
	s := createTestStore(t)

	_, err := s.QueryRuns(context.Background(), &queryir.Equals{Field: "owner", Value: ir.String("x")}, 0)
	if err == nil {
		t.Fatal("QueryRuns() with an unknown field should fail")
	}
	if !strings.Contains(err.Error(), `unknown field "owner"`) {
		t.Errorf("error = %v", err)
	}
}

func TestQueryEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	events := []trace.Event{
		createTestEvent("run-1", 1, trace.KindFlowStart, trace.Fields{"flow": "main"}),
		createTestEvent("run-1", 2, trace.KindGenerate, trace.Fields{"provider": "scripted"}),
		createTestEvent("run-1", 3, trace.KindGenerate, trace.Fields{"provider": "scripted"}),
		createTestEvent("run-1", 4, trace.KindFlowEnd, trace.Fields{"flow": "main"}),
		createTestEvent("run-2", 1, trace.KindGenerate, nil),
	}
	events[2].Turn = 2
	for _, ev := range events {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}

	seqs := func(evs []trace.Event) []int64 {
		out := make([]int64, len(evs))
		for i, ev := range evs {
			out[i] = ev.Seq
		}
		return out
	}

	tests := []struct {
		name   string
		filter queryir.Predicate
		want   []int64
	}{
		{"whole run", nil, []int64{1, 2, 3, 4}},
		{"kind", &queryir.Equals{Field: "kind", Value: ir.String("generate")}, []int64{2, 3}},
		{"turn", &queryir.Equals{Field: "turn", Value: ir.Int(2)}, []int64{3}},
		{"seq set", &queryir.OneOf{Field: "seq", Values: []ir.Value{ir.Int(1), ir.Int(4)}}, []int64{1, 4}},
		{"since", &queryir.Since{Field: "ts", Time: baseTime.Add(3 * time.Millisecond)}, []int64{3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryEvents(ctx, "run-1", tt.filter)
			if err != nil {
				t.Fatalf("QueryEvents() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, seqs(got)); diff != "" {
				t.Errorf("QueryEvents() mismatch (-want +got):\n%s", diff)
			}
			for _, ev := range got {
				if ev.CorrelationID != "run-1" {
					t.Errorf("event from run %q leaked into run-1", ev.CorrelationID)
				}
			}
		})
	}
}
