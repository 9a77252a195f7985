package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run is one program execution.
type Run struct {
	ID          string
	Program     string // path of the program file, or "-" for stdin
	Entry       string
	ProgramHash string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      RunStatus

	ErrorKind    string
	ErrorMessage string
	Result       ir.Value // nil until finished, or when the run failed
	OutputDigest string
}

// Outcome is what FinishRun records.
type Outcome struct {
	Status       RunStatus
	FinishedAt   time.Time
	ErrorKind    string
	ErrorMessage string
	Result       ir.Value
	OutputDigest string
}

// BeginRun records the start of a run. If events for the run were already
// written (the tracer can emit before the caller gets here), the placeholder
// row is filled in. Calling BeginRun twice for the same id updates the
// descriptive columns and leaves status alone.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, program, entry, program_hash, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			program = excluded.program,
			entry = excluded.entry,
			program_hash = excluded.program_hash,
			started_at = excluded.started_at
	`,
		run.ID,
		run.Program,
		run.Entry,
		run.ProgramHash,
		formatTime(run.StartedAt),
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run. The run must exist.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}
	if out.Status == "" || out.Status == StatusRunning {
		return fmt.Errorf("finish run %s: invalid status %q", id, out.Status)
	}
	result, err := marshalResult(out.Result)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, error_kind = ?, error_message = ?,
		    result = ?, output_digest = ?
		WHERE id = ?
	`,
		formatTime(out.FinishedAt),
		string(out.Status),
		out.ErrorKind,
		out.ErrorMessage,
		result,
		out.OutputDigest,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// WriteEvent appends one trace event to the run named by its correlation
// id. Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - writing
// the same event twice is silently ignored. A placeholder run row is
// created when the run has not been begun yet.
func (s *Store) WriteEvent(ctx context.Context, ev trace.Event) error {
	if ev.CorrelationID == "" {
		return fmt.Errorf("write event: missing correlation id")
	}
	fields, err := marshalFields(ev.Fields)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.CorrelationID, formatTime(ev.TS), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("write event: ensure run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, kind, ts, elapsed_ms, turn, fields, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.CorrelationID,
		ev.Seq,
		string(ev.Kind),
		formatTime(ev.TS),
		ev.ElapsedMS,
		ev.Turn,
		fields,
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event: commit: %w", err)
	}
	return nil
}

// DeleteRun removes a run and its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return nil
}
