package ast

// Inspect calls fn for every statement in stmts and every expression
// they contain, depth first. Expressions nested inside f-strings are
// visited too.
func Inspect(stmts []Stmt, fn func(Stmt, Expr)) {
	for _, s := range stmts {
		inspectStmt(s, fn)
	}
}

func inspectStmt(s Stmt, fn func(Stmt, Expr)) {
	fn(s, nil)
	expr := func(e Expr) {
		if e != nil {
			inspectExpr(e, fn)
		}
	}
	switch n := s.(type) {
	case *Assign:
		expr(n.Value)
	case *Return:
		expr(n.Value)
	case *If:
		expr(n.Cond)
		Inspect(n.Body, fn)
		for _, e := range n.Elifs {
			expr(e.Cond)
			Inspect(e.Body, fn)
		}
		Inspect(n.Else, fn)
	case *Loop:
		expr(n.Max)
		Inspect(n.Body, fn)
	case *For:
		expr(n.Iter)
		Inspect(n.Body, fn)
	case *TryCatch:
		Inspect(n.Body, fn)
		Inspect(n.Catch, fn)
	case *Parallel:
		for _, br := range n.Branches {
			Inspect(br, fn)
		}
	case *Select:
		for _, br := range n.Branches {
			Inspect(br, fn)
		}
	case *ExprStmt:
		expr(n.X)
	}
}

func inspectExpr(e Expr, fn func(Stmt, Expr)) {
	fn(nil, e)
	visit := func(xs ...Expr) {
		for _, x := range xs {
			if x != nil {
				inspectExpr(x, fn)
			}
		}
	}
	switch n := e.(type) {
	case *FString:
		for _, p := range n.Parts {
			visit(p.Expr)
		}
	case *ListLit:
		visit(n.Elems...)
	case *MapLit:
		for _, en := range n.Entries {
			visit(en.Value)
		}
	case *Call:
		visit(n.Args...)
		for _, kw := range n.Kwargs {
			visit(kw.Value)
		}
	case *MethodCall:
		visit(n.Recv)
		visit(n.Args...)
		for _, kw := range n.Kwargs {
			visit(kw.Value)
		}
	case *FieldAccess:
		visit(n.X)
	case *Index:
		visit(n.X, n.Index)
	case *Slice:
		visit(n.X, n.Lo, n.Hi)
	case *Binary:
		visit(n.Left, n.Right)
	case *Not:
		visit(n.X)
	case *Neg:
		visit(n.X)
	case *Async:
		visit(n.X)
	}
}
