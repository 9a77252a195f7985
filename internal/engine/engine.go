package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/trace"
)

// Interpreter executes flows.
//
// Thread-safety model:
//   - Run, Call and Exec may be called from any goroutine.
//   - The Registry is shared by every goroutine the interpreter spawns.
//   - Each goroutine owns its Scope; see Scope.Fork.
type Interpreter struct {
	registry *Registry
	boundary effect.Boundary
	tracer   *trace.Tracer
	logger   *slog.Logger
	external schema.Resolver

	loopLimit int
	maxDepth  int
	maxTurns  int

	futureSeq atomic.Int64
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithTracer records lifecycle and effect events on tr.
func WithTracer(tr *trace.Tracer) Option {
	return func(in *Interpreter) { in.tracer = tr }
}

// WithLogger sets the logger for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithTypes makes externally defined types (for example compiled CUE
// definitions) available to think(format=...) and validate.
func WithTypes(r schema.Resolver) Option {
	return func(in *Interpreter) { in.external = r }
}

// WithLoopLimit sets the iteration limit of `loop:` without max=.
//
// Default: 1000 (DefaultLoopLimit)
func WithLoopLimit(n int) Option {
	return func(in *Interpreter) { in.loopLimit = n }
}

// WithMaxDepth bounds nested flow calls.
//
// Default: 256 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(in *Interpreter) { in.maxDepth = n }
}

// WithMaxTurns sets the default generation budget of a tool-enabled think.
//
// Default: 10 (DefaultMaxTurns)
func WithMaxTurns(n int) Option {
	return func(in *Interpreter) { in.maxTurns = n }
}

// New creates an interpreter performing effects through b.
func New(b effect.Boundary, opts ...Option) *Interpreter {
	in := &Interpreter{
		boundary:  b,
		loopLimit: DefaultLoopLimit,
		maxDepth:  DefaultMaxDepth,
		maxTurns:  DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	in.registry = NewRegistry(in.external)
	return in
}

// Registry returns the flow and type table.
func (in *Interpreter) Registry() *Registry { return in.registry }

// Boundary returns the effect boundary.
func (in *Interpreter) Boundary() effect.Boundary { return in.boundary }

// Load registers the flows and types of p.
func (in *Interpreter) Load(p *ast.Program) {
	in.registry.Load(p)
}

// RunProgram loads p, executes its top-level statements and then calls the
// entry flow. An empty entry means "main" when p defines it. The result is
// the entry flow's return value, or None.
func (in *Interpreter) RunProgram(ctx context.Context, p *ast.Program, entry string, args ir.Map) (ir.Value, error) {
	in.Load(p)

	if len(p.Stmts) > 0 {
		if _, err := in.Exec(ctx, NewScope(), p.Stmts); err != nil {
			in.reportError(err, "")
			return nil, err
		}
	}

	if entry == "" {
		if p.Flow("main") == nil {
			return ir.None{}, nil
		}
		entry = "main"
	}
	return in.Run(ctx, entry, args)
}

// Run calls the flow named entry with args bound by parameter name. An
// uncaught error is recorded as an error event before it is returned.
func (in *Interpreter) Run(ctx context.Context, entry string, args ir.Map) (ir.Value, error) {
	v, err := in.Call(ctx, entry, args)
	if err != nil {
		in.reportError(err, entry)
		return nil, err
	}
	return v, nil
}

// Call invokes a registered flow with named arguments.
func (in *Interpreter) Call(ctx context.Context, name string, args ir.Map) (v ir.Value, err error) {
	defer recoverPanic(&err, "flow "+name)
	st := in.newState(ctx, NewScope())
	return st.invoke(name, args)
}

// Exec runs statements directly in scope. It returns the value of the last
// statement when that statement is a bare expression, otherwise None. Used
// by eval and the REPL.
func (in *Interpreter) Exec(ctx context.Context, scope *Scope, stmts []ast.Stmt) (v ir.Value, err error) {
	defer recoverPanic(&err, "top-level statements")
	st := in.newState(ctx, scope)
	return st.execInPlace(stmts)
}

// recoverPanic turns a panic in the interpreter into a RuntimeError so the
// caller gets an error instead of a crashed process.
func recoverPanic(err *error, where string) {
	if r := recover(); r != nil {
		*err = Errorf("panic in %s: %v", where, r)
	}
}

func (in *Interpreter) newState(ctx context.Context, scope *Scope) *state {
	return &state{in: in, ctx: ctx, scope: scope}
}

func (in *Interpreter) reportError(err error, flow string) {
	if IsCancelled(err) {
		return
	}
	kind := Classify(err)
	in.tracer.EmitError(trace.KindError, trace.Fields{
		"category": string(kind),
		"message":  Message(err),
		"flow":     flow,
	}, err)
	in.logger.Debug("uncaught error", "flow", flow, "kind", kind, "error", err)
}

// Message returns the text bound by `catch e:` for err.
func Message(err error) string {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

// state is the per-goroutine execution context: the scope being walked,
// the cancellation context and the flow being executed.
type state struct {
	in    *Interpreter
	ctx   context.Context
	scope *Scope
	flow  string
	depth int
}

// branch returns a copy of st running under ctx with scope.
func (st *state) branch(ctx context.Context, scope *Scope) *state {
	cp := *st
	cp.scope = scope
	cp.ctx = ctx
	return &cp
}

func (st *state) checkCancelled() error {
	if err := st.ctx.Err(); err != nil {
		return &cancelledError{cause: context.Cause(st.ctx)}
	}
	return nil
}

// perform routes an effect through the boundary. Cancellation is checked
// before the call only: an effect that has started runs to completion under
// a context detached from cancel(), and its own result or error stands.
func (st *state) perform(op effect.Op) (ir.Value, error) {
	if err := st.checkCancelled(); err != nil {
		return nil, err
	}
	v, err := st.in.boundary.Perform(context.WithoutCancel(st.ctx), op)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = ir.None{}
	}
	return v, nil
}

// invoke calls a registered flow with arguments bound by name.
func (st *state) invoke(name string, args ir.Map) (ir.Value, error) {
	flow, ok := st.in.registry.Flow(name)
	if !ok {
		return nil, NotFoundf("flow not found: %s", name)
	}
	return st.callFlow(flow, nil, args)
}

// callFlow binds positional and named arguments and executes flow in a
// fresh scope.
func (st *state) callFlow(flow *ast.FlowDef, positional []ir.Value, named ir.Map) (ir.Value, error) {
	if st.depth+1 > st.in.maxDepth {
		return nil, Errorf("maximum call depth exceeded (%d) calling %s", st.in.maxDepth, flow.Name)
	}

	callee := &state{
		in:    st.in,
		ctx:   st.ctx,
		scope: NewScope(),
		flow:  flow.Name,
		depth: st.depth + 1,
	}
	if err := callee.bindParams(flow, positional, named); err != nil {
		return nil, err
	}

	start := time.Now()
	st.in.tracer.Emit(trace.KindFlowStart, trace.Fields{"flow": flow.Name})
	st.in.logger.Debug("flow start", "flow", flow.Name, "depth", callee.depth)

	ctl, err := callee.execBody(flow.Body)

	fields := trace.Fields{"flow": flow.Name, "duration_ms": time.Since(start).Milliseconds()}
	st.in.tracer.EmitError(trace.KindFlowEnd, fields, err)
	st.in.logger.Debug("flow end", "flow", flow.Name, "error", err)

	if err != nil {
		return nil, err
	}
	switch ctl.kind {
	case ctlReturn:
		return ctl.value, nil
	case ctlBreak, ctlContinue:
		return nil, Errorf("%s outside loop in flow %s", ctl.kind, flow.Name)
	}
	return ir.None{}, nil
}

func (st *state) bindParams(flow *ast.FlowDef, positional []ir.Value, named ir.Map) error {
	if len(positional) > len(flow.Params) {
		return Errorf("%s() takes %d arguments, got %d", flow.Name, len(flow.Params), len(positional))
	}
	for _, key := range named.Keys() {
		if !hasParam(flow, key) {
			return Errorf("%s() got an unknown argument %q", flow.Name, key)
		}
	}
	for i, p := range flow.Params {
		if i < len(positional) {
			if named.Has(p.Name) {
				return Errorf("%s() got multiple values for argument %q", flow.Name, p.Name)
			}
			st.scope.Define(p.Name, positional[i])
			continue
		}
		if v, ok := named.Get(p.Name); ok {
			st.scope.Define(p.Name, v)
			continue
		}
		if p.Default == nil {
			return Errorf("%s() missing argument %q", flow.Name, p.Name)
		}
		v, err := st.eval(p.Default)
		if err != nil {
			return err
		}
		st.scope.Define(p.Name, v)
	}
	return nil
}

func hasParam(flow *ast.FlowDef, name string) bool {
	for _, p := range flow.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (st *state) emitBranch(kind trace.Kind, construct string, index int, outcome string) {
	f := trace.Fields{"construct": construct, "index": index}
	if outcome != "" {
		f["outcome"] = outcome
	}
	st.in.tracer.Emit(kind, f)
	st.in.logger.Debug(string(kind), "construct", construct, "index", index, "outcome", outcome)
}

func (c ctlKind) String() string {
	switch c {
	case ctlBreak:
		return "break"
	case ctlContinue:
		return "continue"
	case ctlReturn:
		return "return"
	}
	return fmt.Sprintf("ctl(%d)", int(c))
}
