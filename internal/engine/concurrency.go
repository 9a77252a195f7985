package engine

import (
	"context"
	"sync"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/trace"
)

// execParallel runs every branch on its own goroutine against a fork of
// the current scope and waits for all of them. Forks that finished without
// error are merged in completion order; the first error observed is
// returned after the join. A break, continue or return inside a branch
// ends that branch only.
func (st *state) execParallel(s *ast.Parallel) (control, error) {
	n := len(s.Branches)
	forks := make([]*Scope, n)
	errs := make([]error, n)
	finished := make(chan int, n)

	var wg sync.WaitGroup
	for i, body := range s.Branches {
		forks[i] = st.scope.Fork()
		b := st.branch(st.ctx, forks[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = b.runBranch("parallel", i, body)
			finished <- i
		}()
	}
	wg.Wait()
	close(finished)

	var first error
	merged := make([]*Scope, 0, n)
	for i := range finished {
		if errs[i] != nil {
			if first == nil {
				first = errs[i]
			}
			continue
		}
		merged = append(merged, forks[i])
	}
	st.scope.Merge(merged...)
	return control{}, first
}

// execSelect races the branches. The first branch to finish without error
// wins: its writes are merged, the others are cancelled and their forks
// discarded, and its control signal propagates. Losers are not waited for.
//
// The winner's context is left running: futures it started belong to the
// enclosing scope now and end only through cancel() or the run's context.
func (st *state) execSelect(s *ast.Select) (control, error) {
	n := len(s.Branches)
	if n == 0 {
		return control{}, nil
	}

	type result struct {
		index int
		ctl   control
		err   error
	}
	results := make(chan result, n)
	forks := make([]*Scope, n)
	cancels := make([]context.CancelFunc, n)

	for i, body := range s.Branches {
		ctx, cancel := context.WithCancel(st.ctx)
		cancels[i] = cancel
		forks[i] = st.scope.Fork()
		b := st.branch(ctx, forks[i])
		go func() {
			ctl, err := b.runBranch("select", i, body)
			results <- result{index: i, ctl: ctl, err: err}
		}()
	}
	cancelExcept := func(winner int) {
		for i, cancel := range cancels {
			if i != winner {
				cancel()
			}
		}
	}

	var first error
	for range n {
		select {
		case r := <-results:
			if r.err == nil {
				cancelExcept(r.index)
				st.scope.Merge(forks[r.index])
				st.in.logger.Debug("select won", "index", r.index)
				return r.ctl, nil
			}
			if first == nil || (IsCancelled(first) && !IsCancelled(r.err)) {
				first = r.err
			}
		case <-st.ctx.Done():
			cancelExcept(-1)
			return control{}, &cancelledError{cause: context.Cause(st.ctx)}
		}
	}
	cancelExcept(-1)
	return control{}, first
}

// runBranch executes one concurrent branch, converting a panic into a
// RuntimeError.
func (st *state) runBranch(construct string, index int, body []ast.Stmt) (ctl control, err error) {
	st.emitBranch(trace.KindBranchStart, construct, index, "")
	defer func() {
		if r := recover(); r != nil {
			err = Errorf("panic in %s branch %d: %v", construct, index, r)
		}
		st.emitBranch(trace.KindBranchEnd, construct, index, outcome(err))
	}()
	return st.execBody(body)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCancelled(err):
		return "cancelled"
	}
	return "error"
}
