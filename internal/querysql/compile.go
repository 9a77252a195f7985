// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/queryir"
)

// table describes how a source is stored.
type table struct {
	name    string
	columns string // selected columns, in scan order
	order   string // total order over the rows
}

var tables = map[queryir.Source]table{
	queryir.SourceRuns: {
		name: "runs",
		columns: `id, program, entry, program_hash, started_at, finished_at, status,
	error_kind, error_message, result, output_digest`,
		order: "started_at DESC, id COLLATE BINARY ASC",
	},
	queryir.SourceEvents: {
		name:    "trace_events",
		columns: "run_id, seq, kind, ts, elapsed_ms, turn, fields, error",
		order:   "run_id COLLATE BINARY ASC, seq ASC",
	},
}

// Columns returns the columns selected for src, in the order rows are
// scanned.
func Columns(src queryir.Source) string {
	return tables[src].columns
}

// SQLCompiler compiles queries to parameterized SQL for SQLite.
//
// Every statement has an ORDER BY with a unique tiebreaker, so results are
// deterministic. Values are always passed as parameters, never
// interpolated.
type SQLCompiler struct {
	// Bound holds the values of BoundEquals parameters by name.
	Bound map[string]any

	// FormatTime converts Since bounds to the stored representation.
	// Nil passes RFC 3339 text with nanoseconds.
	FormatTime func(time.Time) any
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Bound: make(map[string]any)}
}

// Compile converts q to SQL and its parameters. Invalid queries are
// rejected with the errors Validate reports.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	t := tables[q.From]

	var (
		where  string
		params []any
	)
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", t.columns, t.name, where, t.order)
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.OneOf:
		return c.compileOneOf(pred)
	case *queryir.OneOf:
		return c.compileOneOf(*pred)
	case queryir.Since:
		return c.compileSince(pred)
	case *queryir.Since:
		return c.compileSince(*pred)
	case queryir.BoundEquals:
		return c.compileBoundEquals(pred)
	case *queryir.BoundEquals:
		return c.compileBoundEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func (c *SQLCompiler) compileOneOf(in queryir.OneOf) (string, []any, error) {
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", in.Field, err)
		}
		params[i] = param
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
	return fmt.Sprintf("%s IN (%s)", in.Field, placeholders), params, nil
}

func (c *SQLCompiler) compileSince(s queryir.Since) (string, []any, error) {
	var param any
	if c.FormatTime != nil {
		param = c.FormatTime(s.Time)
	} else {
		param = s.Time.UTC().Format(time.RFC3339Nano)
	}
	return s.Field + " >= ?", []any{param}, nil
}

func (c *SQLCompiler) compileBoundEquals(b queryir.BoundEquals) (string, []any, error) {
	val, ok := c.Bound[b.Param]
	if !ok {
		return "", nil, fmt.Errorf("no value bound for parameter %q", b.Param)
	}
	return b.Field + " = ?", []any{val}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// valueToParam converts an ir value to a SQL parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("%s cannot be used as a SQL parameter", ir.Repr(v))
	}
}
