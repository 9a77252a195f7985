package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/trace"
)

func mustParseScenario(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestRun_PassingScenario(t *testing.T) {
	s := mustParseScenario(t, `
name: echo
description: Echoes stdin
program: |
  flow main():
      line = read(stdin)
      print(line.upper())
      return [line, read(stdin)]
script:
  stdin: [hello]
expect:
  output: [HELLO]
  result: [hello, null]
assertions:
  - type: trace_count
    kind: io
    count: 3
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "echo-1", result.RunID)
	assert.Equal(t, []string{"HELLO"}, result.Output)
	assert.Equal(t, ir.NewList(ir.String("hello"), ir.None{}), result.Value)
	assert.NotEmpty(t, result.Digest)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq, "trace is in seq order")
		assert.Equal(t, "echo-1", ev.CorrelationID)
	}
}

func TestRun_ExpectationFailures(t *testing.T) {
	s := mustParseScenario(t, `
name: wrong
description: Every expectation is wrong
program: |
  flow main():
      print("actual")
      return 2
expect:
  output: [expected]
  result: 3
assertions:
  - type: trace_count
    kind: generate
    count: 1
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, `output: expected ["expected"], got ["actual"]`, result.Errors[0])
	assert.Equal(t, "result: expected 3, got 2", result.Errors[1])
	assert.Contains(t, result.Errors[2], "Assertion failed: trace_count")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := mustParseScenario(t, `
name: boom
description: Fails without expecting to
program: |
  flow main():
      return missing
expect:
  result: 1
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, "RuntimeError", result.ErrorKind)
	assert.Nil(t, result.Value)
	assert.Empty(t, result.Digest)
	require.Len(t, result.Errors, 1, "result is not compared when the run failed")
	assert.Contains(t, result.Errors[0], "unexpected RuntimeError: undefined variable: missing")
}

func TestRun_ExpectedError(t *testing.T) {
	tests := []struct {
		name    string
		expect  string
		pass    bool
		message string
	}{
		{"kind and text", "error_kind: NotFoundError\n  error_contains: nope", true, ""},
		{"wrong kind", "error_kind: ValidationError", false, "error kind: expected ValidationError, got NotFoundError"},
		{"wrong text", "error_contains: something else", false, `error: expected to contain "something else"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustParseScenario(t, `
name: not_found
description: Invokes a missing flow
program: |
  flow main():
      return invoke("nope", {})
expect:
  `+tt.expect+"\n")

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors: %v", result.Errors)
			if tt.message != "" {
				require.NotEmpty(t, result.Errors)
				assert.Contains(t, result.Errors[0], tt.message)
			}
		})
	}
}

func TestRun_ExpectedErrorButSucceeded(t *testing.T) {
	s := mustParseScenario(t, `
name: fine
description: d
program: "x = 1\n"
expect:
  error_kind: RuntimeError
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"expected an error, but the run succeeded"}, result.Errors)
}

func TestRun_SyntaxErrorIsReturned(t *testing.T) {
	s := mustParseScenario(t, `
name: syntax
description: d
program: "flow main(:\n"
expect: {}
`)

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse program")
}

func TestRun_BadScriptIsReturned(t *testing.T) {
	s := mustParseScenario(t, `
name: script
description: d
program: "x = 1\n"
script:
  generatoins: []
expect: {}
`)

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode script")
}

func TestRun_EntryAndArgs(t *testing.T) {
	s := mustParseScenario(t, `
name: entry
description: d
program: |
  flow add(a: Int, b: Int = 1) -> Int:
      return a + b
entry: add
args: {a: 41}
expect:
  result: 42
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FullTraceLevel(t *testing.T) {
	s := mustParseScenario(t, `
name: full
description: d
trace_level: full
program: |
  flow main():
      return think("question")
script:
  generations: [answer]
assertions:
  - type: trace_contains
    kind: generate
    fields: {prompt: question, response: answer}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FixedRunID(t *testing.T) {
	s := mustParseScenario(t, `
name: fixed
description: d
run_id: run-fixed
program: "x = 1\n"
expect: {}
`)

	h := New()
	for range 2 {
		result, err := h.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, "run-fixed", result.RunID)
	}
}

func TestHarness_RunIDsPerScenario(t *testing.T) {
	a := mustParseScenario(t, "name: a\ndescription: d\nprogram: \"x = 1\\n\"\nexpect: {}\n")
	b := mustParseScenario(t, "name: b\ndescription: d\nprogram: \"x = 1\\n\"\nexpect: {}\n")

	h := New()
	var ids []string
	for _, s := range []*Scenario{a, a, b} {
		result, err := h.Run(context.Background(), s)
		require.NoError(t, err)
		ids = append(ids, result.RunID)
	}
	assert.Equal(t, []string{"a-1", "a-2", "b-1"}, ids)
}

func TestRun_ReplayIsDeterministic(t *testing.T) {
	s, err := LoadScenario("../../testdata/scenarios/tool_loop.yaml")
	require.NoError(t, err)

	h := New()
	first, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), s)
	require.NoError(t, err)

	require.True(t, first.Pass, "errors: %v", first.Errors)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, Snapshot(s.Name, first), Snapshot(s.Name, second))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_WithTypes(t *testing.T) {
	s := mustParseScenario(t, `
name: types
description: d
program: |
  flow main():
      p = think("where", format=Point)
      return p.x + p.y
script:
  generations: ['{"x": 1, "y": 2}']
expect:
  result: 3
`)

	types := schema.Types{"Point": &schema.Record{
		Name: "Point",
		Fields: []schema.Field{
			{Name: "x", Type: schema.Int},
			{Name: "y", Type: schema.Int},
		},
	}}
	result, err := New(WithTypes(types)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Timeout(t *testing.T) {
	s := mustParseScenario(t, `
name: slow
description: d
program: |
  flow main():
      sleep(5)
expect:
  error_kind: Cancelled
`)

	result, err := New(WithTimeout(20 * time.Millisecond)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_Kinds(t *testing.T) {
	r := NewResult()
	r.Trace = []trace.Event{{Kind: trace.KindFlowStart}, {Kind: trace.KindFlowEnd}}
	assert.Equal(t, []trace.Kind{trace.KindFlowStart, trace.KindFlowEnd}, r.Kinds())
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("bad")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"bad"}, r.Errors)
}
