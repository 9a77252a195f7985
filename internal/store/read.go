package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/queryir"
	"github.com/roach88/cognos/internal/querysql"
	"github.com/roach88/cognos/internal/trace"
)

var (
	runColumns   = querysql.Columns(queryir.SourceRuns)
	eventColumns = querysql.Columns(queryir.SourceEvents)
)

// ReadRun retrieves a single run by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means no
// limit. Ties on start time are broken by id so the order is stable.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.QueryRuns(ctx, nil, limit)
}

// QueryRuns returns the runs matching filter, newest first. A nil filter
// matches every run; limit <= 0 means no limit.
func (s *Store) QueryRuns(ctx context.Context, filter queryir.Predicate, limit int) ([]Run, error) {
	query, args, err := s.compiler().Compile(queryir.Select{From: queryir.SourceRuns, Filter: filter, Limit: limit})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
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

// ReadEvents returns every event of a run ordered by seq ASC.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]trace.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadEventsByKind returns the events of one kind, ordered by seq ASC.
func (s *Store) ReadEventsByKind(ctx context.Context, runID string, kind trace.Kind) ([]trace.Event, error) {
	return s.QueryEvents(ctx, runID, &queryir.Equals{Field: "kind", Value: ir.String(kind)})
}

// QueryEvents returns the events of a run matching filter, ordered by seq
// ASC. A nil filter matches every event.
func (s *Store) QueryEvents(ctx context.Context, runID string, filter queryir.Predicate) ([]trace.Event, error) {
	c := s.compiler()
	c.Bound["run"] = runID
	query, args, err := c.Compile(queryir.Select{
		From:   queryir.SourceEvents,
		Filter: queryir.Where(&queryir.BoundEquals{Field: "run_id", Param: "run"}, filter),
	})
	if err != nil {
		return nil, err
	}
	return s.queryEvents(ctx, query, args...)
}

// CountEvents returns the number of events per kind for a run.
func (s *Store) CountEvents(ctx context.Context, runID string) (map[trace.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM trace_events
		WHERE run_id = ?
		GROUP BY kind
		ORDER BY kind
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[trace.Kind]int{}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[trace.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

// CountRuns returns the number of runs per status.
func (s *Store) CountRuns(ctx context.Context) (map[RunStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM runs
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := map[RunStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		counts[RunStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run counts: %w", err)
	}
	return counts, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// compiler returns a query compiler that writes times the way they are
// stored.
func (s *Store) compiler() *querysql.SQLCompiler {
	c := querysql.NewSQLCompiler()
	c.FormatTime = func(t time.Time) any { return formatTime(t) }
	return c
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                  Run
		started, status      string
		finished, resultJSON sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Program,
		&run.Entry,
		&run.ProgramHash,
		&started,
		&finished,
		&status,
		&run.ErrorKind,
		&run.ErrorMessage,
		&resultJSON,
		&run.OutputDigest,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Status = RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
		}
	}
	if resultJSON.Valid {
		if run.Result, err = unmarshalResult(resultJSON.String); err != nil {
			return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func scanEvent(row scanner) (trace.Event, error) {
	var (
		ev         trace.Event
		kind, ts   string
		fieldsJSON string
	)
	err := row.Scan(
		&ev.CorrelationID,
		&ev.Seq,
		&kind,
		&ts,
		&ev.ElapsedMS,
		&ev.Turn,
		&fieldsJSON,
		&ev.Error,
	)
	if err != nil {
		return trace.Event{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Kind = trace.Kind(kind)
	if ev.TS, err = parseTime(ts); err != nil {
		return trace.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if ev.Fields, err = unmarshalFields(fieldsJSON); err != nil {
		return trace.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	return ev, nil
}
