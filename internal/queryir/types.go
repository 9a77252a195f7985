package queryir

import (
	"time"

	"github.com/roach88/cognos/internal/ir"
)

// Source names a queryable collection.
type Source string

const (
	SourceRuns   Source = "runs"
	SourceEvents Source = "events"
)

// FieldType is the type of a filterable field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInt
	FieldTime
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldInt:
		return "int"
	case FieldTime:
		return "time"
	default:
		return "unknown"
	}
}

// Fields lists the filterable fields of each source.
var Fields = map[Source]map[string]FieldType{
	SourceRuns: {
		"id":            FieldText,
		"program":       FieldText,
		"entry":         FieldText,
		"program_hash":  FieldText,
		"status":        FieldText,
		"error_kind":    FieldText,
		"output_digest": FieldText,
		"started_at":    FieldTime,
		"finished_at":   FieldTime,
	},
	SourceEvents: {
		"run_id":     FieldText,
		"kind":       FieldText,
		"error":      FieldText,
		"seq":        FieldInt,
		"turn":       FieldInt,
		"elapsed_ms": FieldInt,
		"ts":         FieldTime,
	},
}

// Query is a sealed interface over query nodes.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over filter conditions.
type Predicate interface {
	predicateNode()
}

// Select reads the rows of From that satisfy Filter.
//
//	Select{
//	  From:   SourceRuns,
//	  Filter: &And{Predicates: []Predicate{
//	    &OneOf{Field: "status", Values: []ir.Value{ir.String("failed"), ir.String("cancelled")}},
//	    &Since{Field: "started_at", Time: yesterday},
//	  }},
//	  Limit: 20,
//	}
//
// reads as
//
//	SELECT ... FROM runs
//	WHERE status IN (?, ?) AND started_at >= ?
//	ORDER BY started_at DESC, id ASC LIMIT ?
//
// A nil Filter keeps every row. Limit <= 0 means no limit.
type Select struct {
	From   Source
	Filter Predicate
	Limit  int
}

func (Select) queryNode() {}

// Equals keeps rows whose Field equals Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// OneOf keeps rows whose Field equals any of Values.
type OneOf struct {
	Field  string
	Values []ir.Value
}

func (OneOf) predicateNode() {}

// Since keeps rows whose time Field is at or after Time. Rows where the
// field is unset never match.
type Since struct {
	Field string
	Time  time.Time
}

func (Since) predicateNode() {}

// BoundEquals keeps rows whose Field equals the value bound to Param when
// the query is compiled.
//
//	Select{From: SourceEvents, Filter: &BoundEquals{Field: "run_id", Param: "run"}}
//
// is compiled once per run with Param "run" bound to that run's id.
type BoundEquals struct {
	Field string
	Param string
}

func (BoundEquals) predicateNode() {}

// And keeps rows satisfying every predicate. An empty And keeps every row.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where combines preds into one predicate, dropping nils. It returns nil
// when nothing is left and the predicate itself when only one is.
func Where(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &And{Predicates: kept}
	}
}
