package engine

import (
	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/ir"
)

type ctlKind int

const (
	ctlNone ctlKind = iota
	ctlBreak
	ctlContinue
	ctlReturn
)

// control is the non-error outcome of executing statements.
type control struct {
	kind  ctlKind
	value ir.Value
}

// execBody runs stmts in the current scope. Flow bodies and concurrent
// branches run this way: their scope is already private.
func (st *state) execBody(stmts []ast.Stmt) (control, error) {
	for _, s := range stmts {
		if err := st.checkCancelled(); err != nil {
			return control{}, err
		}
		ctl, err := st.exec(s)
		if err != nil {
			return control{}, at(err, st.flow, s.Position().Line)
		}
		if ctl.kind != ctlNone {
			return ctl, nil
		}
	}
	return control{}, nil
}

// execBlock runs a nested block in a child scope.
func (st *state) execBlock(stmts []ast.Stmt) (control, error) {
	return st.branch(st.ctx, st.scope.Child()).execBody(stmts)
}

// execInPlace runs stmts in the current scope and returns the value of a
// trailing expression statement.
func (st *state) execInPlace(stmts []ast.Stmt) (ir.Value, error) {
	if len(stmts) == 0 {
		return ir.None{}, nil
	}
	last, isExpr := stmts[len(stmts)-1].(*ast.ExprStmt)
	if !isExpr {
		_, err := st.execBody(stmts)
		return ir.None{}, err
	}
	if _, err := st.execBody(stmts[:len(stmts)-1]); err != nil {
		return nil, err
	}
	if err := st.checkCancelled(); err != nil {
		return nil, err
	}
	v, err := st.eval(last.X)
	if err != nil {
		return nil, at(err, st.flow, last.Position().Line)
	}
	return v, nil
}

func (st *state) exec(s ast.Stmt) (control, error) {
	switch s := s.(type) {
	case *ast.Assign:
		v, err := st.eval(s.Value)
		if err != nil {
			return control{}, err
		}
		st.scope.Assign(s.Name, v)
		return control{}, nil

	case *ast.ExprStmt:
		_, err := st.eval(s.X)
		return control{}, err

	case *ast.Return:
		if s.Value == nil {
			return control{kind: ctlReturn, value: ir.None{}}, nil
		}
		v, err := st.eval(s.Value)
		if err != nil {
			return control{}, err
		}
		return control{kind: ctlReturn, value: v}, nil

	case *ast.Break:
		return control{kind: ctlBreak}, nil

	case *ast.Continue:
		return control{kind: ctlContinue}, nil

	case *ast.Pass:
		return control{}, nil

	case *ast.If:
		return st.execIf(s)

	case *ast.Loop:
		return st.execLoop(s)

	case *ast.For:
		return st.execFor(s)

	case *ast.TryCatch:
		return st.execTry(s)

	case *ast.Parallel:
		return st.execParallel(s)

	case *ast.Select:
		return st.execSelect(s)
	}
	return control{}, Errorf("unsupported statement %T", s)
}

func (st *state) execIf(s *ast.If) (control, error) {
	cond, err := st.eval(s.Cond)
	if err != nil {
		return control{}, err
	}
	if ir.Truthy(cond) {
		return st.execBlock(s.Body)
	}
	for _, elif := range s.Elifs {
		cond, err := st.eval(elif.Cond)
		if err != nil {
			return control{}, err
		}
		if ir.Truthy(cond) {
			return st.execBlock(elif.Body)
		}
	}
	if s.Else != nil {
		return st.execBlock(s.Else)
	}
	return control{}, nil
}

// execLoop runs `loop:` and `loop max=N:`. An explicit max ends the loop
// quietly after N iterations; the default limit is a runaway guard and
// exceeding it is an error.
func (st *state) execLoop(s *ast.Loop) (control, error) {
	limit, bounded := st.in.loopLimit, false
	if s.Max != nil {
		v, err := st.eval(s.Max)
		if err != nil {
			return control{}, err
		}
		n, ok := v.(ir.Int)
		if !ok {
			return control{}, Errorf("loop max must be Int, got %s", kindOf(v))
		}
		limit, bounded = int(n), true
	}

	q := newQuota("loop", limit)
	for {
		if err := q.Check(); err != nil {
			if bounded {
				return control{}, nil
			}
			return control{}, err
		}
		ctl, err := st.execBlock(s.Body)
		if err != nil {
			return control{}, err
		}
		switch ctl.kind {
		case ctlBreak:
			return control{}, nil
		case ctlReturn:
			return ctl, nil
		}
	}
}

func (st *state) execFor(s *ast.For) (control, error) {
	iter, err := st.eval(s.Iter)
	if err != nil {
		return control{}, err
	}

	type pair struct{ k, v ir.Value }
	var items []pair
	switch it := iter.(type) {
	case ir.List:
		for i, v := range it.All() {
			items = append(items, pair{ir.Int(i), v})
		}
	case ir.Map:
		for k, v := range it.All() {
			items = append(items, pair{ir.String(k), v})
		}
	case ir.String:
		i := 0
		for _, r := range string(it) {
			items = append(items, pair{ir.Int(i), ir.String(string(r))})
			i++
		}
	default:
		return control{}, Errorf("cannot iterate over %s", kindOf(iter))
	}

	for _, item := range items {
		body := st.branch(st.ctx, st.scope.Child())
		switch {
		case s.ValueVar != "":
			body.scope.Define(s.Var, item.k)
			body.scope.Define(s.ValueVar, item.v)
		case iter.Kind() == ir.KindMap:
			body.scope.Define(s.Var, item.k)
		default:
			body.scope.Define(s.Var, item.v)
		}

		ctl, err := body.execBody(s.Body)
		if err != nil {
			return control{}, err
		}
		switch ctl.kind {
		case ctlBreak:
			return control{}, nil
		case ctlReturn:
			return ctl, nil
		}
	}
	return control{}, nil
}

func (st *state) execTry(s *ast.TryCatch) (control, error) {
	ctl, err := st.execBlock(s.Body)
	if err == nil || IsCancelled(err) {
		return ctl, err
	}

	handler := st.branch(st.ctx, st.scope.Child())
	if s.ErrVar != "" {
		handler.scope.Define(s.ErrVar, ir.String(Message(err)))
	}
	return handler.execBody(s.Catch)
}

func kindOf(v ir.Value) ir.Kind {
	if v == nil {
		return ir.KindNone
	}
	return v.Kind()
}
