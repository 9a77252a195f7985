package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayResponse mirrors the JSON printed by replay --format json.
type replayResponse struct {
	Status string       `json:"status"`
	Data   ReplayResult `json:"data"`
	Error  *CLIError    `json:"error"`
}

const parallelProgram = `flow ask(q: Text) -> Text:
    return think(q)

flow main():
    parallel:
        branch:
            a = ask("one")
        branch:
            b = ask("two")
    print("done")
`

func TestReplay_Deterministic(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	stdout, _, err := execute(t, "", "replay", prog, "--script", script, "--runs", "3")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Replay Summary: "+prog+", 3 run(s)")
	assert.Contains(t, stdout, "Run 3: ")
	assert.Contains(t, stdout, "✓ All runs verified deterministic")
}

func TestReplay_JSON(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	stdout, _, err := execute(t, "", "--format", "json", "replay", prog, "--script", script)
	require.NoError(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	require.Len(t, resp.Data.Runs, 2)
	assert.NotEmpty(t, resp.Data.Runs[0].Digest)
	assert.Equal(t, resp.Data.Runs[0].Digest, resp.Data.Runs[1].Digest)
	assert.Equal(t, resp.Data.Runs[0].Events, resp.Data.Runs[1].Events)
	assert.Positive(t, resp.Data.Runs[0].Events)
}

func TestReplay_ParallelBranches(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "parallel.cg", parallelProgram)
	script := writeFile(t, dir, "replay.yaml", `generations: ["x", "y"]`+"\n")

	_, _, err := execute(t, "", "replay", prog, "--script", script, "--runs", "5")

	assert.NoError(t, err)
}

func TestReplay_ProgramErrorIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", "stdin: [ada]\n")

	stdout, _, err := execute(t, "", "--format", "json", "replay", prog, "--script", script)
	require.NoError(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.Data.Deterministic)
	assert.Equal(t, "EffectExhaustedError", resp.Data.Runs[0].ErrorKind)
}

func TestReplay_AgainstRecordedRun(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)
	db := filepath.Join(dir, "runs.db")

	stdout, _, err := execute(t, "", "--format", "json", "run", prog, "--script", script, "--db", db)
	require.NoError(t, err)
	var recorded runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &recorded))

	stdout, _, err = execute(t, "", "--format", "json", "replay", prog, "--script", script, "--db", db, "--run", recorded.RunID)
	require.NoError(t, err)
	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, recorded.Data.Digest, resp.Data.Recorded)
	assert.True(t, resp.Data.Deterministic)

	other := writeFile(t, dir, "other.yaml", "stdin: [ada]\ngenerations: [\"bye\"]\n")
	stdout, _, err = execute(t, "", "--format", "json", "replay", prog, "--script", other, "--db", db, "--run", recorded.RunID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
	assert.Equal(t, "output differs from recorded run "+recorded.RunID, resp.Error.Message)
}

func TestReplay_RecordedRunNotFound(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)
	db := filepath.Join(dir, "runs.db")
	_, _, err := execute(t, "", "run", prog, "--script", script, "--db", db)
	require.NoError(t, err)

	_, _, err = execute(t, "", "replay", prog, "--script", script, "--db", db, "--run", "missing")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run missing not found")
}

func TestReplay_FlagErrors(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	tests := []struct {
		name string
		args []string
	}{
		{"zero runs", []string{"replay", prog, "--script", script, "--runs", "0"}},
		{"missing script file", []string{"replay", prog, "--script", filepath.Join(dir, "nope.yaml")}},
		{"missing program", []string{"replay", filepath.Join(dir, "nope.cg"), "--script", script}},
		{"bad args", []string{"replay", prog, "--script", script, "--args", "[1]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestReplay_ScriptRequired(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "greet.cg", greetProgram)

	_, _, err := execute(t, "", "replay", prog)

	assert.Error(t, err)
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "-", shortDigest(""))
	assert.Equal(t, "abc", shortDigest("abc"))
	assert.Equal(t, "0123456789ab", shortDigest("0123456789abcdef"))
}
