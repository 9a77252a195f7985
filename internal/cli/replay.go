package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Script   string
	Types    string
	Entry    string
	Args     string
	Runs     int
	Database string // optional - compare against a recorded run
	RunID    string
}

// ReplayRun is the outcome of one replayed execution.
type ReplayRun struct {
	Digest    string `json:"output_digest"`
	Events    int    `json:"events"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Program       string      `json:"program"`
	Runs          []ReplayRun `json:"runs"`
	Recorded      string      `json:"recorded_digest,omitempty"`
	Deterministic bool        `json:"deterministic"`
	Mismatch      string      `json:"mismatch,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <program.cg>",
		Short: "Replay a program against a script and verify determinism",
		Long: `Run a program several times against the same replay script and verify
that every run produces the same output, result and trace.

Each run gets a fresh copy of the script. Runs are compared by output digest
and by the trace event kinds they emit. With --db and --run, the digest is
also compared against the one recorded for that run.

Exit codes:
  0 - All runs agree
  1 - Determinism verification failed (differences detected)
  2 - Command error (unreadable program or script, run not found, etc.)

Examples:
  cognos replay agent.cg --script replay.yaml
  cognos replay agent.cg --script replay.yaml --runs 5
  cognos replay agent.cg --script replay.yaml --db runs.db --run 0190f1c2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "replay script (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Types, "types", "", "CUE file with type definitions")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "flow to call (default main)")
	cmd.Flags().StringVar(&opts.Args, "args", "", "entry flow arguments as a JSON object")
	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of runs to compare")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding the recorded run")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "recorded run to compare against (requires --db)")
	cmd.MarkFlagsRequiredTogether("db", "run")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if opts.Runs < 1 {
		return NewExitError(ExitCommandError, "--runs must be at least 1")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	script, err := effect.LoadScript(opts.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}
	types, err := loadTypes(opts.Types)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile types", err)
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	result := ReplayResult{Program: path, Runs: make([]ReplayRun, 0, opts.Runs), Deterministic: true}

	if opts.Database != "" {
		recorded, err := recordedDigest(ctx, opts.Database, opts.RunID)
		if err != nil {
			return err
		}
		result.Recorded = recorded
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	var firstKinds []trace.Kind
	for i := range opts.Runs {
		run, kinds := replayOnce(ctx, prog, script, types, opts.Entry, args, logger)
		result.Runs = append(result.Runs, run)
		if i == 0 {
			firstKinds = kinds
			continue
		}
		if !result.Deterministic {
			continue
		}
		first := result.Runs[0]
		switch {
		case run.Digest != first.Digest || run.ErrorKind != first.ErrorKind:
			result.Deterministic = false
			result.Mismatch = fmt.Sprintf("run %d output differs from run 1", i+1)
		case !slices.Equal(kinds, firstKinds):
			result.Deterministic = false
			result.Mismatch = fmt.Sprintf("run %d trace differs from run 1", i+1)
		}
	}
	if result.Deterministic && result.Recorded != "" && result.Runs[0].Digest != result.Recorded {
		result.Deterministic = false
		result.Mismatch = fmt.Sprintf("output differs from recorded run %s", opts.RunID)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayOnce runs prog against a fresh copy of script and returns the run
// summary with the sorted kinds of the events it traced.
func replayOnce(ctx context.Context, prog *Program, script effect.Script, types schema.Types, entry string, args ir.Map, logger *slog.Logger) (ReplayRun, []trace.Kind) {
	sink := trace.NewMemorySink()
	tracer := trace.New(sink, trace.WithLevel(trace.LevelFull), trace.WithLogger(logger))
	boundary := effect.NewScripted(script, effect.WithTracer(tracer))

	opts := []engine.Option{engine.WithTracer(tracer), engine.WithLogger(logger)}
	if len(types) > 0 {
		opts = append(opts, engine.WithTypes(types))
	}
	value, err := engine.New(boundary, opts...).RunProgram(ctx, prog.AST, entry, args)

	run := ReplayRun{Events: len(sink.Events())}
	if err != nil {
		run.ErrorKind = string(engine.Classify(err))
		run.Error = engine.Message(err)
		value = nil
	}
	if digest, derr := ir.OutputDigest(boundary.Output(), value); derr == nil {
		run.Digest = digest
	}
	// Parallel branches interleave freely; only the multiset of kinds is
	// stable between runs.
	kinds := sink.Kinds()
	slices.Sort(kinds)
	return run, kinds
}

func recordedDigest(ctx context.Context, path, runID string) (string, error) {
	st, err := store.Open(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if run.OutputDigest == "" {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("run %s has no output digest (status %s)", runID, run.Status))
	}
	return run.OutputDigest, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: result.Mismatch,
		}
	}

	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if err := formatter.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return reportedError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %s, %d run(s)\n", result.Program, len(result.Runs))
	fmt.Fprintln(w)

	for i, run := range result.Runs {
		fmt.Fprintf(w, "Run %d: %s (%d events)\n", i+1, shortDigest(run.Digest), run.Events)
		if run.ErrorKind != "" {
			fmt.Fprintf(w, "  %s: %s\n", run.ErrorKind, run.Error)
		}
		if verbose {
			fmt.Fprintf(w, "  Digest: %s\n", run.Digest)
		}
	}
	if result.Recorded != "" {
		fmt.Fprintf(w, "Recorded: %s\n", shortDigest(result.Recorded))
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintf(w, "✗ Determinism verification failed: %s\n", result.Mismatch)
	// Determinism failure = exit code 1
	return reportedError(ExitFailure, "determinism verification failed")
}

func shortDigest(d string) string {
	if d == "" {
		return "-"
	}
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
