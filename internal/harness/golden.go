package harness

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// Snapshot renders the observable outcome of a run as stable text: the
// captured output, the result or error, and the trace with wall-clock
// data removed. Timestamps, elapsed time and every *_ms field vary
// between runs and are dropped; the correlation id is dropped because
// golden files should not depend on it.
//
//	scenario: greet
//	output:
//	  "hello, ada"
//	result: 3
//	trace:
//	  1 flow_start flow="main"
//	  2 io bytes=3 handle="stdin" op="read_line"
func Snapshot(name string, result *Result) []byte {
	var buf strings.Builder

	fmt.Fprintf(&buf, "scenario: %s\n", name)
	if len(result.Output) == 0 {
		buf.WriteString("output: []\n")
	} else {
		buf.WriteString("output:\n")
		for _, line := range result.Output {
			fmt.Fprintf(&buf, "  %s\n", strconv.Quote(line))
		}
	}
	if result.ErrorKind != "" {
		fmt.Fprintf(&buf, "error: %s: %s\n", result.ErrorKind, result.Error)
	} else {
		fmt.Fprintf(&buf, "result: %s\n", ir.Repr(result.Value))
	}
	buf.WriteString("trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
	}
	return []byte(buf.String())
}

// formatEvent renders one event on a line: seq, kind, turn when non-zero,
// then the remaining fields sorted by key and the error last.
func formatEvent(ev trace.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", ev.Seq, ev.Kind)
	if ev.Turn > 0 {
		fmt.Fprintf(&b, " turn=%d", ev.Turn)
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		if strings.HasSuffix(k, "_ms") {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatField(ev.Fields[k]))
	}

	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%s", strconv.Quote(ev.Error))
	}
	return b.String()
}

func formatField(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot run.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
