// Package trace records structured events for every effect and lifecycle
// transition of a program run.
//
// A Tracer stamps events with a logical sequence number, a correlation id,
// the elapsed time since the tracer was created and the current turn (the
// number of generation calls so far), then hands them to a Sink. Sinks
// write JSONL files, keep events in memory, export Prometheus metrics, push
// to Redis or persist to the SQLite store.
package trace

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	KindGenerate        Kind = "generate"
	KindShell           Kind = "shell_exec"
	KindIO              Kind = "io"
	KindHTTP            Kind = "http"
	KindFlowStart       Kind = "flow_start"
	KindFlowEnd         Kind = "flow_end"
	KindToolExec        Kind = "tool_exec"
	KindBranchStart     Kind = "branch_start"
	KindBranchEnd       Kind = "branch_end"
	KindFutureCreated   Kind = "future_created"
	KindFutureResolved  Kind = "future_resolved"
	KindFutureCancelled Kind = "future_cancelled"
	KindError           Kind = "error"
)

// Level controls how much payload is recorded.
type Level string

const (
	// LevelMetrics records sizes, latencies and outcomes only.
	LevelMetrics Level = "metrics"
	// LevelFull adds prompt, response and command output text.
	LevelFull Level = "full"
)

// ParseLevel parses a level name. The empty string means LevelMetrics.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelMetrics:
		return LevelMetrics, nil
	case LevelFull:
		return LevelFull, nil
	}
	return "", fmt.Errorf("unknown trace level %q (want metrics or full)", s)
}

// Fields holds the kind-specific attributes of an event.
type Fields map[string]any

// Event is one trace record. Kind-specific Fields are flattened into the
// top-level JSON object alongside the common envelope.
type Event struct {
	Kind          Kind
	TS            time.Time
	ElapsedMS     int64
	Turn          int64
	Seq           int64
	CorrelationID string
	Fields        Fields
	Error         string
}

// envelope lists the keys reserved for the common fields.
var envelope = map[string]bool{
	"kind": true, "ts": true, "elapsed_ms": true, "turn": true,
	"seq": true, "correlation_id": true, "error": true,
}

// MarshalJSON flattens the event into a single object.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+7)
	for k, v := range e.Fields {
		if !envelope[k] {
			m[k] = v
		}
	}
	m["kind"] = e.Kind
	m["ts"] = e.TS.UTC().Format(time.RFC3339Nano)
	m["elapsed_ms"] = e.ElapsedMS
	m["turn"] = e.Turn
	m["seq"] = e.Seq
	m["correlation_id"] = e.CorrelationID
	if e.Error != "" {
		m["error"] = e.Error
	}
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON. Non-envelope keys land in Fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind          Kind      `json:"kind"`
		TS            time.Time `json:"ts"`
		ElapsedMS     int64     `json:"elapsed_ms"`
		Turn          int64     `json:"turn"`
		Seq           int64     `json:"seq"`
		CorrelationID string    `json:"correlation_id"`
		Error         string    `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*e = Event{
		Kind:          head.Kind,
		TS:            head.TS,
		ElapsedMS:     head.ElapsedMS,
		Turn:          head.Turn,
		Seq:           head.Seq,
		CorrelationID: head.CorrelationID,
		Error:         head.Error,
	}
	for k, v := range all {
		if envelope[k] {
			continue
		}
		if e.Fields == nil {
			e.Fields = Fields{}
		}
		e.Fields[k] = v
	}
	return nil
}

// StringField returns a field as a string, or "".
func (e Event) StringField(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// NumberField returns a numeric field as float64. Fields set in-process hold
// Go integer types; fields decoded from JSON hold float64.
func (e Event) NumberField(key string) (float64, bool) {
	switch n := e.Fields[key].(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
