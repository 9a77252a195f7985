package engine

import (
	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/parser"
	"github.com/roach88/cognos/internal/schema"
)

// evalSource implements eval(source, vars).
//
// Source that declares flows registers them (and its types) permanently and
// runs `main` when one is declared; the result is main's return value, or
// None. vars and top-level statements are ignored in that case, so the
// caller's scope is never touched. Source without flows runs in the
// caller's scope after vars are bound there, so its assignments stay
// visible to the caller.
func (st *state) evalSource(src string, vars ir.Map) (ir.Value, error) {
	p, err := parser.Parse(src)
	if err != nil {
		return nil, Errorf("eval: %v", err)
	}
	st.in.registry.Load(p)

	if len(p.Flows) > 0 {
		st.in.logger.Debug("eval registered flows", "count", len(p.Flows))
		if p.Flow("main") != nil {
			return st.invoke("main", ir.NewMap())
		}
		return ir.None{}, nil
	}

	for name, v := range vars.All() {
		st.scope.Assign(name, v)
	}
	if len(p.Stmts) > 0 {
		if _, err := st.execInPlace(p.Stmts); err != nil {
			return nil, err
		}
	}
	return ir.None{}, nil
}

// validate implements validate(value, Type).
func (st *state) validate(c *ast.Call) (ir.Value, error) {
	if len(c.Args) != 2 || len(c.Kwargs) > 0 {
		return nil, Errorf("validate() takes 2 arguments, got %d", len(c.Args)+len(c.Kwargs))
	}
	v, err := st.eval(c.Args[0])
	if err != nil {
		return nil, err
	}
	t, err := st.typeArg(c.Args[1])
	if err != nil {
		return nil, err
	}
	return schema.Validator{Resolver: st.in.registry}.Validate(t, v)
}

// typeArg interprets an argument that names a type: a bare name
// (`Insight`), a generic (`List[Insight]`), a string holding a name, or a
// variable bound to such a string.
func (st *state) typeArg(e ast.Expr) (schema.Type, error) {
	te, err := st.typeExpr(e)
	if err != nil {
		return nil, err
	}
	t := schema.FromTypeExpr(te)
	if ref, ok := t.(schema.Ref); ok {
		if _, found := st.in.registry.ResolveType(ref.Name); !found {
			return nil, NotFoundf("unknown type: %s", ref.Name)
		}
	}
	return t, nil
}

func (st *state) typeExpr(e ast.Expr) (*ast.TypeExpr, error) {
	switch e := e.(type) {
	case *ast.Ident:
		if v, ok := st.scope.Lookup(e.Name); ok {
			if s, ok := v.(ir.String); ok {
				return &ast.TypeExpr{Name: string(s)}, nil
			}
		}
		return &ast.TypeExpr{Name: e.Name}, nil
	case *ast.StringLit:
		return &ast.TypeExpr{Name: e.Value}, nil
	case *ast.Index:
		base, ok := e.X.(*ast.Ident)
		if !ok {
			break
		}
		arg, err := st.typeExpr(e.Index)
		if err != nil {
			return nil, err
		}
		return &ast.TypeExpr{Name: base.Name, Args: []*ast.TypeExpr{arg}}, nil
	}
	return nil, Errorf("expected a type, got %s", ast.FormatExpr(e))
}
