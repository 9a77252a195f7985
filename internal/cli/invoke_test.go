package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summarizeProgram = filepath.Join("..", "..", "testdata", "programs", "summarize.cg")

const summarizeScript = `files:
  notes.md: "alpha\nbeta\ngamma\n"
generations: ["Greek letters."]
`

func TestInvokeKeyValueArgs(t *testing.T) {
	script := writeFile(t, t.TempDir(), "replay.yaml", summarizeScript)

	stdout, stderr, err := execute(t, "", "invoke", summarizeProgram, "summarize", "path=notes.md", "limit=2", "--script", script)

	require.NoError(t, err)
	assert.Equal(t, "[\"alpha\",\"beta\"]\n", stdout, "stdout carries only the result")
	assert.Contains(t, stderr, "summary of notes.md: Greek letters.")
}

func TestInvokeArgsFlagMergedWithPairs(t *testing.T) {
	script := writeFile(t, t.TempDir(), "replay.yaml", summarizeScript)

	stdout, _, err := execute(t, "", "--format", "json", "invoke", summarizeProgram, "summarize",
		"--args", `{"path": "notes.md", "limit": 5}`, "limit=1", "--script", script)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   []any  `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, []any{"alpha"}, resp.Data, "name=value overrides --args")
}

func TestInvokeDefaultParameter(t *testing.T) {
	script := writeFile(t, t.TempDir(), "replay.yaml", summarizeScript)

	stdout, _, err := execute(t, "", "invoke", summarizeProgram, "summarize", "path=notes.md", "--script", script)

	require.NoError(t, err)
	assert.Equal(t, "[\"alpha\",\"beta\",\"gamma\"]\n", stdout)
}

func TestInvokeUnknownFlow(t *testing.T) {
	_, _, err := execute(t, "", "invoke", summarizeProgram, "translate")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `flow "translate" not found`)
}

func TestInvokeMissingFlowArg(t *testing.T) {
	_, _, err := execute(t, "", "invoke", summarizeProgram)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 2 arg(s)")
}

func TestInvokeMalformedPair(t *testing.T) {
	_, _, err := execute(t, "", "invoke", summarizeProgram, "summarize", "notes.md")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvokeProgramError(t *testing.T) {
	script := writeFile(t, t.TempDir(), "replay.yaml", "generations: []\n")

	_, stderr, err := execute(t, "", "invoke", summarizeProgram, "summarize", "path=missing.md", "--script", script)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NotEmpty(t, stderr)
}
