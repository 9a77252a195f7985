package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RuntimeOptions
	Entry string
	Args  string
}

// RunResult is the JSON payload of a finished run.
type RunResult struct {
	RunID  string   `json:"run_id"`
	Output []string `json:"output"`
	Result any      `json:"result"`
	Digest string   `json:"output_digest,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program.cg>",
		Short: "Run a program",
		Long: `Run a Cognos program.

Top-level statements run first, then the entry flow (main by default).
Effects go to real resources unless --script supplies a replay script.
Use "-" to read the program from stdin.

Exit codes:
  0 - Program finished
  1 - Uncaught program error
  2 - Command error (unreadable program, parse error, bad flags, etc.)

Examples:
  cognos run agent.cg
  cognos run summarize.cg --entry summarize --args '{"path":"notes.txt"}'
  cognos run agent.cg --script replay.yaml --trace-file trace.jsonl
  cognos run agent.cg --db runs.db --trace-level full`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "flow to call (default main)")
	cmd.Flags().StringVar(&opts.Args, "args", "", "entry flow arguments as a JSON object")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	// JSON output carries the program output in the payload.
	out := cmd.OutOrStdout()
	var captured bytes.Buffer
	if formatter.JSON() {
		out = &captured
	}

	stdin := cmd.InOrStdin()
	if path == stdinPath {
		stdin = strings.NewReader("")
	}
	sess, err := openSession(&opts.RuntimeOptions, logger, stdin, out)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	logger.Debug("running program", "program", path, "entry", opts.Entry, "run", sess.RunID())
	result, runErr := sess.execute(ctx, prog, opts.Entry, args)
	if runErr != nil {
		return reportProgramError(formatter, sess.RunID(), runErr)
	}
	formatter.VerboseLog("result: %s", ir.Repr(result))

	if !formatter.JSON() {
		return nil
	}
	output := outputLines(captured.String())
	if sess.scripted != nil {
		output = sess.scripted.Output()
	}
	return formatter.Encode(CLIResponse{
		Status: "ok",
		RunID:  sess.RunID(),
		Data:   runResult(sess.RunID(), output, result),
	})
}

func runResult(runID string, output []string, result ir.Value) RunResult {
	if output == nil {
		output = []string{}
	}
	rr := RunResult{RunID: runID, Output: output, Result: ir.ToGo(result)}
	if digest, err := ir.OutputDigest(output, result); err == nil {
		rr.Digest = digest
	}
	return rr
}

// outputLines splits captured output into the lines the program wrote.
func outputLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// reportProgramError prints an uncaught program error and maps it to
// exit code 1.
func reportProgramError(formatter *OutputFormatter, runID string, err error) error {
	kind := engine.Classify(err)
	if formatter.JSON() {
		_ = formatter.Encode(CLIResponse{
			Status: "error",
			RunID:  runID,
			Error: &CLIError{
				Code:    kindCode(kind),
				Kind:    string(kind),
				Message: err.Error(),
			},
		})
	} else {
		fmt.Fprintf(formatter.GetErrWriter(), "%s: %s\n", kind, err)
	}
	exitErr := WrapExitError(ExitFailure, string(kind), err)
	exitErr.Reported = true
	return exitErr
}
