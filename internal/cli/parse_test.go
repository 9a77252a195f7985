package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verdictProgram = `type Verdict: "yes" | "no"

type Answer:
    verdict: Verdict
    reasons?: List[Text]

flow decide(q: Text, retries: Int = 3) -> Answer:
    a = think(q, format=Answer)
    return a

flow main():
    print(decide("ok?"))
`

func TestParse_Text(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "agent.cg", verdictProgram)

	stdout, _, err := execute(t, "", "parse", prog)

	require.NoError(t, err)
	assert.Contains(t, stdout, `type Verdict: "yes" | "no"`)
	assert.Contains(t, stdout, "    reasons?: List[Text]")
	assert.Contains(t, stdout, "flow decide(q: Text, retries: Int = 3) -> Answer:")
}

func TestParse_TextIsStable(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "agent.cg", verdictProgram)

	first, _, err := execute(t, "", "parse", prog)
	require.NoError(t, err)

	again := writeFile(t, dir, "again.cg", first)
	second, _, err := execute(t, "", "parse", again)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParse_JSON(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "agent.cg", verdictProgram)

	stdout, _, err := execute(t, "", "--format", "json", "parse", prog)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Types []map[string]any `json:"types"`
			Flows []struct {
				Name string           `json:"name"`
				Body []map[string]any `json:"body"`
			} `json:"flows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Types, 2)
	assert.Equal(t, "Verdict", resp.Data.Types[0]["name"])

	require.Len(t, resp.Data.Flows, 2)
	decide := resp.Data.Flows[0]
	assert.Equal(t, "decide", decide.Name)
	require.Len(t, decide.Body, 2)
	assert.Equal(t, "Assign", decide.Body[0]["node"])
	assert.Equal(t, "Return", decide.Body[1]["node"])

	value, ok := decide.Body[0]["value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Call", value["node"])
	assert.Equal(t, "think", value["name"])
}

func TestParse_SyntaxError(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "bad.cg", "flow main(:\n    pass\n")

	stdout, _, err := execute(t, "", "--format", "json", "parse", prog)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, IsReported(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseFailed, resp.Error.Code)
}

func TestParse_FromStdin(t *testing.T) {
	stdout, _, err := execute(t, "flow main():\n    pass\n", "parse", "-")

	require.NoError(t, err)
	assert.Contains(t, stdout, "flow main():")
}

func TestCheck_Text(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "agent.cg", verdictProgram)

	stdout, _, err := execute(t, "", "check", prog)

	require.NoError(t, err)
	assert.Contains(t, stdout, "2 flow(s), 2 type(s)")
	assert.Contains(t, stdout, "type Verdict (enum, line 1)")
	assert.Contains(t, stdout, "type Answer (record, line 3)")
	assert.Contains(t, stdout, "flow decide(q: Text, retries: Int = 3) -> Answer")
}

func TestCheck_UnknownCalls(t *testing.T) {
	src := `flow main():
    x = lookup("a")
    print(x)
    lookup("b")
`
	prog := writeFile(t, t.TempDir(), "agent.cg", src)

	stdout, _, err := execute(t, "", "--format", "json", "check", prog)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, []CallError{{Name: "lookup", Line: 2}}, resp.Data.Unknown, "each unknown name is reported once")
}

func TestCheck_ImportsCountAsKnown(t *testing.T) {
	src := `import "search"

flow main():
    print(search("cats"))
`
	prog := writeFile(t, t.TempDir(), "agent.cg", src)

	_, _, err := execute(t, "", "check", prog)

	assert.NoError(t, err)
}

func TestCheck_MissingFile(t *testing.T) {
	_, _, err := execute(t, "", "check", "does-not-exist.cg")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
