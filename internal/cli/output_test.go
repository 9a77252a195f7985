package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/engine"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeParseFailed, "unexpected indent", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E003", resp.Error.Code)
	assert.Equal(t, "unexpected indent", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeParseFailed, "syntax error", map[string]int{"line": 42})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, map[string]any{"line": float64(42)}, errObj["details"])
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Program valid")
	require.NoError(t, err)
	assert.Equal(t, "Program valid\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodeReadFailed, "cannot read agent.cg", map[string]int{"line": 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]: cannot read agent.cg")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeGeneric, "failed", map[string]string{"file": "agent.cg"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_EncodeNoHTMLEscape(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Encode(map[string]string{"sig": "f(x) -> List[Text] <a&b>"}))
	assert.Contains(t, buf.String(), "f(x) -> List[Text] <a&b>")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "agent.cg")

			assert.Empty(t, out.String(), "verbose logs never go to stdout")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Processing agent.cg")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad flags"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "run", errors.New("x"))), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	inner := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to load program", inner)

	assert.Equal(t, "failed to load program: no such file", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.False(t, IsReported(err))
	assert.True(t, IsReported(reportedError(ExitFailure, "shown")))
}

func TestKindCode(t *testing.T) {
	tests := map[engine.ErrorKind]string{
		engine.KindRuntime:         ErrCodeRuntime,
		engine.KindNotFound:        ErrCodeUnknownName,
		engine.KindConcurrency:     ErrCodeConcurrency,
		engine.KindValidation:      ErrCodeValidation,
		engine.KindEffectExhausted: ErrCodeEffectExhausted,
		engine.KindEffectDenied:    ErrCodeEffectDenied,
		engine.KindCancelled:       ErrCodeProgramCancelled,
	}
	for kind, want := range tests {
		assert.Equal(t, want, kindCode(kind), "kind %s", kind)
	}
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    ErrCodeRuntime,
		Kind:    string(engine.KindRuntime),
		Message: "division by zero",
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"E201","kind":"RuntimeError","message":"division by zero"}`, string(data))
}
