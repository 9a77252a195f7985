package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/cognos/internal/trace"
)

// RunState is a run together with its event log and what the log says
// about it.
type RunState struct {
	Run     Run
	Events  []trace.Event
	LastSeq int64

	Generations int // generate events
	ToolCalls   int // tool_exec events
	Errors      int // error events

	// OpenFlows lists flows that started without a matching flow_end, in
	// start order. Non-empty for a run that crashed or was killed.
	OpenFlows []string
	// PendingFutures lists futures that were created but never resolved
	// or cancelled.
	PendingFutures []string
	// IsComplete is true when the run finished and every flow and future
	// it started was closed.
	IsComplete bool
}

// GetRunState retrieves a run and analyses its event log.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run, Events: events}
	var open []string
	futures := map[string]bool{}
	var futureOrder []string

	for _, ev := range events {
		state.LastSeq = max(state.LastSeq, ev.Seq)
		switch ev.Kind {
		case trace.KindGenerate:
			state.Generations++
		case trace.KindToolExec:
			state.ToolCalls++
		case trace.KindError:
			state.Errors++
		case trace.KindFlowStart:
			open = append(open, ev.StringField("flow"))
		case trace.KindFlowEnd:
			// Flow calls nest per goroutine but parallel branches interleave,
			// so close the most recent start with the same name.
			name := ev.StringField("flow")
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == name {
					open = slices.Delete(open, i, i+1)
					break
				}
			}
		case trace.KindFutureCreated:
			id := ev.StringField("future")
			futures[id] = true
			futureOrder = append(futureOrder, id)
		case trace.KindFutureResolved, trace.KindFutureCancelled:
			delete(futures, ev.StringField("future"))
		}
	}

	state.OpenFlows = open
	for _, id := range futureOrder {
		if futures[id] {
			state.PendingFutures = append(state.PendingFutures, id)
		}
	}
	state.IsComplete = run.Status != StatusRunning && len(open) == 0 && len(state.PendingFutures) == 0
	return state, nil
}

// FindIncompleteRuns returns runs still marked running, oldest first.
// A run stays in that state when the process died before FinishRun.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE status = ?
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`, string(StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomplete runs: %w", err)
	}
	return runs, nil
}

// GetLastSeq returns the highest seq recorded for a run, or 0.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM trace_events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// FindRunsByDigest returns the finished runs whose output digest equals
// digest, oldest first. Replays of the same program and script share a
// digest.
func (s *Store) FindRunsByDigest(ctx context.Context, digest string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE output_digest = ? AND output_digest != ''
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("find runs by digest: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
