package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

type taskState int

const (
	taskPending taskState = iota
	taskCompleted
	taskFailed
	taskCancelled
)

func (s taskState) String() string {
	switch s {
	case taskPending:
		return "pending"
	case taskCompleted:
		return "completed"
	case taskFailed:
		return "failed"
	case taskCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("taskState(%d)", int(s))
}

// task is the computation behind an ir.Future.
//
// State transitions happen once, under mu: Pending to Completed, Failed or
// Cancelled. A cancel request that reaches a Pending task always wins, even
// if the expression finishes before its next statement boundary.
type task struct {
	id string

	mu              sync.Mutex
	state           taskState
	value           ir.Value
	err             error
	cancelRequested bool

	cancel  context.CancelFunc
	done    chan struct{}
	awaited atomic.Bool
}

// ID implements ir.Awaitable.
func (t *task) ID() string { return t.id }

// resolve records the outcome. The caller closes done once the outcome has
// been reported.
func (t *task) resolve(v ir.Value, err error) taskState {
	t.mu.Lock()
	switch {
	case t.cancelRequested || IsCancelled(err):
		t.state = taskCancelled
	case err != nil:
		t.state, t.err = taskFailed, err
	default:
		t.state, t.value = taskCompleted, v
	}
	state := t.state
	t.mu.Unlock()
	return state
}

// requestCancel sets the cancellation flag of a Pending task. It reports
// whether the request had any effect.
func (t *task) requestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != taskPending {
		return false
	}
	t.cancelRequested = true
	t.cancel()
	return true
}

// spawn starts x on a new goroutine against a fork of the current scope and
// returns a Pending future.
func (st *state) spawn(x ast.Expr) ir.Value {
	ctx, cancel := context.WithCancel(st.ctx)
	t := &task{
		id:     fmt.Sprintf("f%d", st.in.futureSeq.Add(1)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b := st.branch(ctx, st.scope.Fork())

	st.in.tracer.Emit(trace.KindFutureCreated, trace.Fields{"future": t.id})
	go func() {
		defer close(t.done)
		defer cancel()
		v, err := b.evalTask(x)
		switch state := t.resolve(v, err); state {
		case taskCancelled:
			st.in.tracer.Emit(trace.KindFutureCancelled, trace.Fields{"future": t.id})
		default:
			st.in.tracer.Emit(trace.KindFutureResolved, trace.Fields{"future": t.id, "outcome": state.String()})
			if state == taskFailed {
				st.in.logger.Debug("future failed", "future", t.id, "error", err)
			}
		}
	}()
	return ir.Future{Ref: t}
}

func (st *state) evalTask(x ast.Expr) (v ir.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf("panic in async task: %v", r)
		}
	}()
	if err := st.checkCancelled(); err != nil {
		return nil, err
	}
	return st.eval(x)
}

func taskOf(v ir.Value, builtin string) (*task, error) {
	f, ok := v.(ir.Future)
	if !ok {
		return nil, Errorf("%s() expects a Future, got %s", builtin, kindOf(v))
	}
	t, ok := f.Ref.(*task)
	if !ok {
		return nil, Concurrencyf("%s(): foreign future", builtin)
	}
	return t, nil
}

// await blocks until the future leaves Pending. A future may be awaited
// once.
func (st *state) await(v ir.Value) (ir.Value, error) {
	t, err := taskOf(v, "await")
	if err != nil {
		return nil, err
	}
	if !t.awaited.CompareAndSwap(false, true) {
		return nil, Concurrencyf("future %s already awaited", t.id)
	}

	select {
	case <-t.done:
	case <-st.ctx.Done():
		return nil, &cancelledError{cause: context.Cause(st.ctx)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case taskCompleted:
		return t.value, nil
	case taskFailed:
		return nil, t.err
	}
	return nil, Concurrencyf("future %s was cancelled", t.id)
}

// cancelTask requests cancellation. Completed and failed futures are left
// unchanged.
func (st *state) cancelTask(v ir.Value) (ir.Value, error) {
	t, err := taskOf(v, "cancel")
	if err != nil {
		return nil, err
	}
	if t.requestCancel() {
		st.in.logger.Debug("future cancel requested", "future", t.id)
	}
	return ir.None{}, nil
}
