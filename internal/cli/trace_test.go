package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traceResponse mirrors the JSON printed by trace --format json.
type traceResponse struct {
	Status string      `json:"status"`
	RunID  string      `json:"run_id"`
	Data   TraceResult `json:"data"`
}

// recordRun runs greetProgram with extra run flags and returns its run id.
func recordRun(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	prog := writeFile(t, dir, "greet.cg", greetProgram)
	script := writeFile(t, dir, "replay.yaml", greetScript)

	args := append([]string{"--format", "json", "run", prog, "--script", script, "--trace-level", "full"}, extra...)
	stdout, _, err := execute(t, "", args...)
	require.NoError(t, err)
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

func TestTrace_ListRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	first := recordRun(t, "--db", db)
	second := recordRun(t, "--db", db)

	stdout, _, err := execute(t, "", "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, first)
	assert.Contains(t, stdout, second)
	assert.Contains(t, stdout, "succeeded")

	stdout, _, err = execute(t, "", "--format", "json", "trace", "--db", db, "--limit", "1")
	require.NoError(t, err)
	var resp struct {
		Data []RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "succeeded", resp.Data[0].Status)
	assert.NotEmpty(t, resp.Data[0].Digest)
}

func TestTrace_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	stdout, _, err := execute(t, "", "trace", "--db", db)

	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs found in database.")
}

func TestTrace_RunTimeline(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	id := recordRun(t, "--db", db)

	stdout, _, err := execute(t, "", "trace", "--db", db, "--run", id)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Trace for Run: "+id)
	assert.Contains(t, stdout, "Status: succeeded (complete)")
	assert.Contains(t, stdout, "=== Timeline ===")
	assert.Contains(t, stdout, "flow_start")
	assert.Contains(t, stdout, "generate")
	assert.Contains(t, stdout, "Generations:  1")
}

func TestTrace_KindFilter(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	id := recordRun(t, "--db", db)

	stdout, _, err := execute(t, "", "--format", "json", "trace", "--db", db, "--run", id, "--kind", "generate")
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, id, resp.RunID)
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, "generate", resp.Data.Timeline[0].Kind)
	assert.Greater(t, resp.Data.Stats.TotalEvents, 1, "stats cover every event")
	assert.Equal(t, 1, resp.Data.Stats.Generations)
	assert.True(t, resp.Data.Stats.IsComplete)
	assert.Empty(t, resp.Data.Stats.OpenFlows)
}

func TestTrace_Where(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	first := recordRun(t, "--db", db)
	second := recordRun(t, "--db", db)

	list := func(where ...string) []RunSummary {
		t.Helper()
		args := []string{"--format", "json", "trace", "--db", db}
		for _, w := range where {
			args = append(args, "--where", w)
		}
		stdout, _, err := execute(t, "", args...)
		require.NoError(t, err)
		var resp struct {
			Data []RunSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		return resp.Data
	}

	assert.Len(t, list("status=succeeded"), 2)
	assert.Empty(t, list("status=failed"))

	runs := list("id=" + first)
	require.Len(t, runs, 1)
	assert.Equal(t, first, runs[0].ID)

	runs = list("id="+first+","+second, "started_at>=2000-01-01")
	assert.Len(t, runs, 2)
}

func TestTrace_WhereInvalid(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	for _, term := range []string{"owner=ada", "status>=2025-01-01", "started_at=2025-01-01", "nonsense"} {
		_, _, err := execute(t, "", "trace", "--db", db, "--where", term)
		require.Error(t, err, term)
		assert.Equal(t, ExitCommandError, GetExitCode(err), term)
		assert.Contains(t, err.Error(), "invalid --where", term)
	}
}

func TestTrace_RunNotFound(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, "--db", db)

	_, _, err := execute(t, "", "trace", "--db", db, "--run", "missing")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run missing not found")
}

func TestTrace_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	id := recordRun(t, "--trace-file", path)

	stdout, _, err := execute(t, "", "--format", "json", "trace", "--file", path)
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, id, resp.Data.RunID, "run id defaults to the first event's")
	require.NotEmpty(t, resp.Data.Timeline)
	assert.Equal(t, "flow_start", resp.Data.Timeline[0].Kind)
	assert.Equal(t, len(resp.Data.Timeline), resp.Data.Stats.TotalEvents)
}

func TestTrace_FileFromStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	id := recordRun(t, "--trace-file", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	stdout, _, err := execute(t, string(data), "trace", "--file", "-")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Trace for Run: "+id)
	assert.NotContains(t, stdout, "Status:", "files carry no run status")
}

func TestTrace_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	id := recordRun(t, "--redis-addr", mr.Addr())

	stdout, _, err := execute(t, "", "--format", "json", "trace", "--redis-addr", mr.Addr(), "--run", id)
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 1, resp.Data.Stats.Generations)
	assert.NotEmpty(t, resp.Data.Timeline)
}

func TestTrace_RedisRequiresRun(t *testing.T) {
	mr := miniredis.RunT(t)

	_, _, err := execute(t, "", "trace", "--redis-addr", mr.Addr())

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrace_SourceFlags(t *testing.T) {
	_, _, err := execute(t, "", "trace")
	assert.Error(t, err, "one source is required")

	_, _, err = execute(t, "", "trace", "--db", "a.db", "--file", "b.jsonl")
	assert.Error(t, err, "sources are exclusive")
}

func TestFormatFields(t *testing.T) {
	fields := map[string]any{
		"prompt": strings.Repeat("x", 50),
		"flow":   "main",
		"args":   []any{"a", map[string]any{"k": 1}},
	}

	short := formatFields(fields, false)
	assert.Equal(t, "{args=[a, {k=1}], flow=main, prompt="+strings.Repeat("x", 40)+"...}", short)

	full := formatFields(fields, true)
	assert.Contains(t, full, "prompt="+strings.Repeat("x", 50)+"}")

	assert.Equal(t, "{}", formatFields(nil, false))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, `a\nb`, truncateText("a\nb", 10))
	assert.Equal(t, "abc...", truncateText("abcdef", 3))
}
