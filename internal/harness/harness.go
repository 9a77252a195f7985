package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/parser"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/testutil"
	"github.com/roach88/cognos/internal/trace"
)

// DefaultTimeout bounds a single scenario run.
const DefaultTimeout = 30 * time.Second

// Harness is the test execution engine.
// It runs scenarios against a Scripted boundary with a deterministic
// clock and run ids.
type Harness struct {
	logger  *slog.Logger
	types   schema.Resolver
	timeout time.Duration

	mu  sync.Mutex
	ids map[string]*testutil.RunIDGenerator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithTypes makes external type definitions (e.g. compiled from CUE)
// available to every scenario.
func WithTypes(r schema.Resolver) Option {
	return func(h *Harness) { h.types = r }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) { h.timeout = d }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultTimeout,
		ids:     map[string]*testutil.RunIDGenerator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a fresh harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a test scenario and returns the result.
//
// Each run gets a fresh Scripted boundary, tracer and interpreter, so
// nothing leaks between scenarios. Program failures are reported through
// the result; the returned error is reserved for scenarios that cannot
// run at all (unreadable program, syntax error, bad script).
//
// Execution flow:
// 1. Parse the program and decode the replay script
// 2. Run the entry flow against the Scripted boundary
// 3. Check the expect clause
// 4. Evaluate trace assertions
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	src := scenario.Program
	if scenario.ProgramFile != "" {
		data, err := os.ReadFile(scenario.ProgramFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read program: %w", err)
		}
		src = string(data)
	}
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}

	script, err := effect.DecodeScript(scenario.Script)
	if err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}

	args := ir.NewMap()
	if scenario.Args != nil {
		v, err := ir.FromGo(scenario.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to convert args: %w", err)
		}
		args = v.(ir.Map)
	}

	level, err := trace.ParseLevel(scenario.TraceLevel)
	if err != nil {
		return nil, err
	}

	// Deterministic helpers: a stepping wall clock and predictable run ids
	clock := testutil.NewSteppingClock(testutil.Epoch, time.Millisecond)
	sink := trace.NewMemorySink()
	tr := trace.New(sink,
		trace.WithLevel(level),
		trace.WithIDGenerator(h.idGenerator(scenario)),
		trace.WithNow(clock.Now),
		trace.WithLogger(h.logger),
	)
	boundary := effect.NewScripted(script, effect.WithTracer(tr))

	engineOpts := []engine.Option{engine.WithTracer(tr), engine.WithLogger(h.logger)}
	if h.types != nil {
		engineOpts = append(engineOpts, engine.WithTypes(h.types))
	}
	interp := engine.New(boundary, engineOpts...)

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	value, runErr := interp.RunProgram(runCtx, prog, scenario.Entry, args)

	result := NewResult()
	result.RunID = tr.RunID()
	result.Output = boundary.Output()
	result.Trace = sink.Events()
	slices.SortFunc(result.Trace, func(a, b trace.Event) int {
		return int(a.Seq - b.Seq)
	})
	if runErr != nil {
		result.ErrorKind = string(engine.Classify(runErr))
		result.Error = runErr.Error()
	} else {
		result.Value = value
		digest, err := ir.OutputDigest(result.Output, value)
		if err != nil {
			return nil, fmt.Errorf("failed to digest output: %w", err)
		}
		result.Digest = digest
	}

	checkExpect(result, scenario.Expect)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
		"error_kind", result.ErrorKind,
	)
	return result, nil
}

func (h *Harness) idGenerator(s *Scenario) trace.IDGenerator {
	if s.RunID != "" {
		return trace.ConstantGenerator(s.RunID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	gen, ok := h.ids[s.Name]
	if !ok {
		gen = testutil.NewRunIDGenerator(s.Name)
		h.ids[s.Name] = gen
	}
	return gen
}

// checkExpect compares the run against the expect clause. Without one, a
// run only has to finish without an uncaught error.
func checkExpect(result *Result, e *Expect) {
	switch {
	case e.ExpectsError() && result.ErrorKind == "":
		result.AddError("expected an error, but the run succeeded")
	case e.ExpectsError():
		if e.ErrorKind != "" && e.ErrorKind != result.ErrorKind {
			result.AddError(fmt.Sprintf("error kind: expected %s, got %s (%s)", e.ErrorKind, result.ErrorKind, result.Error))
		}
		if e.ErrorContains != "" && !strings.Contains(result.Error, e.ErrorContains) {
			result.AddError(fmt.Sprintf("error: expected to contain %q, got %q", e.ErrorContains, result.Error))
		}
	case result.ErrorKind != "":
		result.AddError(fmt.Sprintf("unexpected %s: %s", result.ErrorKind, result.Error))
	}
	if e == nil {
		return
	}

	if e.Output != nil && !slices.Equal(e.Output, result.Output) {
		result.AddError(fmt.Sprintf("output: expected %q, got %q", e.Output, result.Output))
	}

	if e.hasResult && result.ErrorKind == "" {
		want, err := ir.FromGo(e.Result)
		if err != nil {
			result.AddError(fmt.Sprintf("expect.result: %v", err))
			return
		}
		if !ir.Equal(want, result.Value) {
			result.AddError(fmt.Sprintf("result: expected %s, got %s", ir.Repr(want), ir.Repr(result.Value)))
		}
	}
}
