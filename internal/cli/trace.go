package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/queryir"
	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	File      string
	RedisAddr string
	RunID     string
	Kind      string   // optional - filter to one event kind
	Where     []string // run listing filters, field=value or field>=time
	Limit     int
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq       int64          `json:"seq"`
	Kind      string         `json:"kind"`
	Turn      int64          `json:"turn"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Fields    map[string]any `json:"fields,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string       `json:"run_id"`
	Status   string       `json:"status,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents    int            `json:"total_events"`
	Kinds          map[string]int `json:"kinds"`
	Generations    int            `json:"generations"`
	ToolCalls      int            `json:"tool_calls"`
	Errors         int            `json:"errors"`
	OpenFlows      []string       `json:"open_flows,omitempty"`
	PendingFutures []string       `json:"pending_futures,omitempty"`
	IsComplete     bool           `json:"is_complete"`
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string `json:"id"`
	Program    string `json:"program"`
	Entry      string `json:"entry,omitempty"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Digest     string `json:"output_digest,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs and their trace events",
		Long: `Show the trace timeline of a recorded run.

Events are read from a run database (--db), a JSON lines trace file
(--file) or a Redis trace list (--redis-addr). With --db and no --run,
recent runs are listed instead; --where narrows the listing with
field=value, field=v1,v2 or field>=time terms over the run columns
(id, program, entry, program_hash, status, error_kind, output_digest,
started_at, finished_at).

The output includes:
- Timeline: events in sequence order
- Stats: event counts, plus flows and futures left open by the run

Examples:
  cognos trace --db runs.db
  cognos trace --db runs.db --where status=failed --where started_at>=2025-03-01
  cognos trace --db runs.db --run 0190f1c2-... --kind generate
  cognos trace --file trace.jsonl
  cognos trace --redis-addr localhost:6379 --run 0190f1c2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.File, "file", "", "JSON lines trace file (- for stdin)")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis-addr", "", "Redis server holding trace lists")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter listed runs (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list")
	cmd.MarkFlagsOneRequired("db", "file", "redis-addr")
	cmd.MarkFlagsMutuallyExclusive("db", "file", "redis-addr")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case opts.Database != "":
		return traceFromStore(ctx, opts, cmd)
	case opts.File != "":
		events, err := readTraceFile(opts.File, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace file", err)
		}
		runID := opts.RunID
		if runID == "" && len(events) > 0 {
			runID = events[0].CorrelationID
		}
		return outputTrace(cmd, opts, buildTrace(runID, events, opts.Kind))
	default:
		if opts.RunID == "" {
			return NewExitError(ExitCommandError, "--run is required with --redis-addr")
		}
		sink := trace.NewRedisSink(opts.RedisAddr, "", 0)
		defer sink.Close()
		events, err := sink.Events(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace from redis", err)
		}
		return outputTrace(cmd, opts, buildTrace(opts.RunID, events, opts.Kind))
	}
}

func traceFromStore(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	filter, err := queryir.ParseTerms(queryir.SourceRuns, opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.QueryRuns(ctx, filter, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return outputRunList(cmd, opts, runs)
	}

	state, err := st.GetRunState(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run state", err)
	}

	result := buildTrace(opts.RunID, state.Events, opts.Kind)
	result.Status = string(state.Run.Status)
	result.Stats.OpenFlows = state.OpenFlows
	result.Stats.PendingFutures = state.PendingFutures
	result.Stats.IsComplete = state.IsComplete
	return outputTrace(cmd, opts, result)
}

func readTraceFile(path string, stdin io.Reader) ([]trace.Event, error) {
	if path == stdinPath {
		return trace.ReadJSONL(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trace.ReadJSONL(f)
}

// buildTrace converts events of runID into a timeline. Stats always cover
// every event; kindFilter only narrows the timeline.
func buildTrace(runID string, events []trace.Event, kindFilter string) TraceResult {
	result := TraceResult{
		RunID:    runID,
		Timeline: []TraceEvent{},
		Stats:    TraceStats{Kinds: map[string]int{}},
	}
	for _, ev := range events {
		if runID != "" && ev.CorrelationID != "" && ev.CorrelationID != runID {
			continue
		}
		result.Stats.TotalEvents++
		result.Stats.Kinds[string(ev.Kind)]++
		switch ev.Kind {
		case trace.KindGenerate:
			result.Stats.Generations++
		case trace.KindToolExec:
			result.Stats.ToolCalls++
		case trace.KindError:
			result.Stats.Errors++
		}

		if kindFilter != "" && string(ev.Kind) != kindFilter {
			continue
		}
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:       ev.Seq,
			Kind:      string(ev.Kind),
			Turn:      ev.Turn,
			ElapsedMS: ev.ElapsedMS,
			Fields:    ev.Fields,
			Error:     ev.Error,
		})
	}
	return result
}

func outputTrace(cmd *cobra.Command, opts *TraceOptions, result TraceResult) error {
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return formatter.Encode(CLIResponse{
		Status: "ok",
		RunID:  result.RunID,
		Data:   result,
	})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	if result.Status != "" {
		fmt.Fprintf(w, "Status: %s (%s)\n", result.Status, completeStatus(result.Stats.IsComplete))
	}
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Generations:  %d\n", result.Stats.Generations)
	fmt.Fprintf(w, "  Tool Calls:   %d\n", result.Stats.ToolCalls)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)
	if len(result.Stats.OpenFlows) > 0 {
		fmt.Fprintf(w, "  Open Flows:   %s\n", strings.Join(result.Stats.OpenFlows, ", "))
	}
	if len(result.Stats.PendingFutures) > 0 {
		fmt.Fprintf(w, "  Pending Futures: %s\n", strings.Join(result.Stats.PendingFutures, ", "))
	}
	if verbose {
		kinds := make([]string, 0, len(result.Stats.Kinds))
		for k := range result.Stats.Kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-16s %d\n", k+":", result.Stats.Kinds[k])
		}
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %-16s %s\n", event.Seq, event.Kind, formatFields(event.Fields, verbose))
	if event.Error != "" {
		fmt.Fprintf(w, "       Error: %s\n", event.Error)
	}
	if verbose {
		fmt.Fprintf(w, "       Turn: %d, +%dms\n", event.Turn, event.ElapsedMS)
	}
}

// formatFields formats event fields for display.
// Uses sorted keys to ensure deterministic output.
func formatFields(fields map[string]any, verbose bool) string {
	if len(fields) == 0 {
		return "{}"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := formatValue(fields[k])
		if !verbose {
			v = truncateText(v, 40)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatFields(val, true)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncateText(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "complete"
	}
	return "incomplete"
}

func summarizeRun(r store.Run) RunSummary {
	s := RunSummary{
		ID:        r.ID,
		Program:   r.Program,
		Entry:     r.Entry,
		Status:    string(r.Status),
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
		ErrorKind: r.ErrorKind,
		Digest:    r.OutputDigest,
	}
	if !r.FinishedAt.IsZero() {
		s.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func outputRunList(cmd *cobra.Command, opts *TraceOptions, runs []store.Run) error {
	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarizeRun(r)
	}
	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s  %-9s  %s", s.ID, s.Status, s.Program)
		if s.Entry != "" {
			line += " (" + s.Entry + ")"
		}
		if s.ErrorKind != "" {
			line += "  " + s.ErrorKind
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
