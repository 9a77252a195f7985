package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

// runResponse mirrors the JSON printed by run --format json.
type runResponse struct {
	Status string    `json:"status"`
	RunID  string    `json:"run_id"`
	Data   RunResult `json:"data"`
	Error  *CLIError `json:"error"`
}

func TestRunScripted(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	stdout, _, err := execute(t, "", "run", prog, "--script", script)

	require.NoError(t, err)
	assert.Equal(t, "hello, ada\n", stdout)
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	stdout, _, err := execute(t, "", "--format", "json", "run", prog, "--script", script)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout must be a single JSON document: %s", stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, resp.RunID, resp.Data.RunID)
	assert.Equal(t, []string{"hello, ada"}, resp.Data.Output)
	assert.Equal(t, "hello, ada", resp.Data.Result)
	assert.NotEmpty(t, resp.Data.Digest)
}

func TestRunJSON_DigestStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	digest := func() string {
		stdout, _, err := execute(t, "", "--format", "json", "run", prog, "--script", script)
		require.NoError(t, err)
		var resp runResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		return resp.Data.Digest
	}
	assert.Equal(t, digest(), digest())
}

func TestRunEntryAndArgs(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", `generations: ["hi bob"]`+"\n")

	stdout, _, err := execute(t, "", "--format", "json", "run", prog,
		"--script", script, "--entry", "greet", "--args", `{"name": "bob"}`)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "hi bob", resp.Data.Result)
	assert.Equal(t, []string{"hi bob"}, resp.Data.Output)
}

func TestRunProgramFromStdin(t *testing.T) {
	stdout, _, err := execute(t, "print(\"from stdin\")\n", "run", "-")

	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", stdout)
}

func TestRunLiveStdin(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "echo.cg", `flow main():
    line = read(stdin)
    print(f"got {line}")
`)

	stdout, _, err := execute(t, "ping\n", "run", prog)

	require.NoError(t, err)
	assert.Equal(t, "got ping\n", stdout)
}

func TestRunProgramError(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "broken.cg", `flow main():
    print("before")
    return undefined_flow()
`)

	stdout, stderr, err := execute(t, "", "run", prog)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err), "program errors are printed by the command")
	assert.Equal(t, "before\n", stdout)
	assert.Contains(t, stderr, "NotFoundError")
	assert.Contains(t, stderr, "undefined_flow")
}

func TestRunProgramErrorJSON(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "broken.cg", `flow main():
    return undefined_flow()
`)

	stdout, _, err := execute(t, "", "--format", "json", "run", prog)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownName, resp.Error.Code)
	assert.Equal(t, "NotFoundError", resp.Error.Kind)
	assert.NotEmpty(t, resp.RunID)
}

func TestRunExhaustedScript(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", "stdin: [ada]\n")

	_, stderr, err := execute(t, "", "run", prog, "--script", script)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "EffectExhaustedError")
}

func TestRunParseError(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "bad.cg", "flow main(:\n    return 1\n")

	stdout, _, err := execute(t, "", "run", prog)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, IsReported(err))
	assert.Empty(t, stdout)
}

func TestRunMissingProgram(t *testing.T) {
	_, _, err := execute(t, "", "run", filepath.Join(t.TempDir(), "missing.cg"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "missing.cg")
}

func TestRunInvalidArgs(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)

	_, _, err := execute(t, "", "run", prog, "--args", "[1, 2]")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "expected an object")
}

func TestRunInvalidTraceLevel(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)

	_, _, err := execute(t, "", "run", prog, "--trace-level", "everything")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunRecordsToDatabase(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)
	dbPath := filepath.Join(dir, "runs.db")

	stdout, _, err := execute(t, "", "--format", "json", "run", prog, "--script", script, "--db", dbPath)
	require.NoError(t, err)
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	run, err := st.ReadRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, run.Status)
	assert.Equal(t, prog, run.Program)
	assert.Equal(t, resp.Data.Digest, run.OutputDigest)
	assert.NotEmpty(t, run.ProgramHash)

	state, err := st.GetRunState(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Generations)
	assert.True(t, state.IsComplete)
}

func TestRunRecordsFailure(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "broken.cg", "flow main():\n    return undefined_flow()\n")
	dbPath := filepath.Join(dir, "runs.db")

	stdout, _, err := execute(t, "", "--format", "json", "run", prog, "--db", dbPath)
	require.Error(t, err)
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Equal(t, "NotFoundError", run.ErrorKind)
}

func TestRunTraceFile(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)
	tracePath := filepath.Join(dir, "trace.jsonl")

	_, _, err := execute(t, "", "run", prog, "--script", script, "--trace-file", tracePath, "--trace-level", "full")
	require.NoError(t, err)

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	events, err := trace.ReadJSONL(f)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var kinds []trace.Kind
	for _, ev := range events {
		assert.Equal(t, events[0].CorrelationID, ev.CorrelationID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, trace.KindFlowStart)
	assert.Contains(t, kinds, trace.KindGenerate)
	assert.Contains(t, kinds, trace.KindFlowEnd)
}

func TestOutputLines(t *testing.T) {
	assert.Equal(t, []string{}, outputLines(""))
	assert.Equal(t, []string{"a"}, outputLines("a\n"))
	assert.Equal(t, []string{"a", "", "b"}, outputLines("a\n\nb\n"))
}
