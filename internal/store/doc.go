// Package store provides SQLite-backed durable storage for Cognos runs and
// their trace events.
//
// The store holds two tables:
//   - runs: one row per program run, keyed by the run id (the tracer's
//     correlation id), with status, error classification, result and the
//     canonical output digest
//   - trace_events: the append-only event log of each run, keyed by
//     (run_id, seq)
//
// # Ordering
//
// Event queries order by seq, the tracer's logical clock, never by
// timestamp. Two runs of the same program against the same replay script
// therefore read back in the same order regardless of wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Result values are stored as canonical JSON produced by internal/ir.
package store
