package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDemoScenarios runs the scenarios shipped under testdata/scenarios.
// They serve as end-to-end checks of the interpreter, the Scripted
// boundary and the tracer, and as examples of the scenario format.
func TestDemoScenarios(t *testing.T) {
	tests := []struct {
		name         string
		scenarioPath string
	}{
		{"greet", "../../testdata/scenarios/greet.yaml"},
		{"tool_loop", "../../testdata/scenarios/tool_loop.yaml"},
		{"parallel_merge", "../../testdata/scenarios/parallel_merge.yaml"},
		{"select_break", "../../testdata/scenarios/select_break.yaml"},
		{"format_enum", "../../testdata/scenarios/format_enum.yaml"},
		{"cancel_await", "../../testdata/scenarios/cancel_await.yaml"},
		{"exhausted_script", "../../testdata/scenarios/exhausted_script.yaml"},
		{"summarize_file", "../../testdata/scenarios/summarize_file.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(tt.scenarioPath)
			require.NoError(t, err, "failed to load scenario from %s", tt.scenarioPath)

			assert.Equal(t, tt.name, scenario.Name, "scenario name mismatch")
			assert.NotEmpty(t, scenario.Description, "scenario should have description")

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err, "scenario execution failed")
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestDemoScenarios_Suite(t *testing.T) {
	result, err := New().RunSuite(context.Background(), []string{"../../testdata/scenarios"})
	require.NoError(t, err)
	assert.Equal(t, 8, result.TotalScenarios)
	assert.True(t, result.OK(), "failures: %+v", result.Failures)
}
