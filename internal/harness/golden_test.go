package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

func TestRunWithGolden_Greet(t *testing.T) {
	s, err := LoadScenario("../../testdata/scenarios/greet.yaml")
	require.NoError(t, err)

	// To regenerate: go test ./internal/harness -run TestRunWithGolden -update
	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_ToolLoop(t *testing.T) {
	s, err := LoadScenario("../../testdata/scenarios/tool_loop.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Output = []string{"two\nlines", ""}
	result.Value = ir.NewMap(ir.P("ok", ir.Bool(true)))
	result.Trace = []trace.Event{
		{Seq: 1, Kind: trace.KindFlowStart, CorrelationID: "run-1", ElapsedMS: 4, Fields: trace.Fields{"flow": "main"}},
		{Seq: 2, Kind: trace.KindHTTP, Turn: 3, Fields: trace.Fields{
			"url": "https://example.com", "method": "GET", "status": 200, "latency_ms": int64(12),
		}},
	}

	want := `scenario: demo
output:
  "two\nlines"
  ""
result: {"ok": true}
trace:
  1 flow_start flow="main"
  2 http turn=3 method="GET" status=200 url="https://example.com"
`
	assert.Equal(t, want, string(Snapshot("demo", result)))
}

func TestSnapshot_ErrorAndEmptyOutput(t *testing.T) {
	result := NewResult()
	result.ErrorKind = "RuntimeError"
	result.Error = "undefined variable: x (flow main, line 2)"
	result.Trace = []trace.Event{
		{Seq: 1, Kind: trace.KindError, Fields: trace.Fields{"category": "RuntimeError"}, Error: "undefined variable: x"},
	}

	want := `scenario: failing
output: []
error: RuntimeError: undefined variable: x (flow main, line 2)
trace:
  1 error category="RuntimeError" error="undefined variable: x"
`
	assert.Equal(t, want, string(Snapshot("failing", result)))
}
