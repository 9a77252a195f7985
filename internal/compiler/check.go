package compiler

import (
	"fmt"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/schema"
)

// Diagnostic codes (E100-E199)
const (
	ErrDuplicateType    = "E101" // type declared twice
	ErrDuplicateVariant = "E102" // enum variant repeated
	ErrUndefinedType    = "E103" // type reference has no declaration
	ErrDuplicateField   = "E104" // record field repeated
	ErrLoopControl      = "E105" // break/continue outside a loop
	ErrGenericArity     = "E106" // List/Map with the wrong number of type arguments
)

// Diagnostic is a structural problem found by Check.
type Diagnostic struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", d.Code, d.Line, d.Field, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Code, d.Field, d.Message)
}

// Check reports structural problems in p. It does not type-check
// expressions; programs are only validated at runtime boundaries.
// Type names resolvable through external (e.g. CUE definitions) count as
// declared. Returns all diagnostics found (does not fail-fast).
func Check(p *ast.Program, external schema.Resolver) []Diagnostic {
	var diags []Diagnostic

	declared := make(map[string]bool, len(p.Types))
	for _, td := range p.Types {
		// E101: duplicate type name
		if declared[td.Name] {
			diags = append(diags, Diagnostic{
				Field:   "type " + td.Name,
				Message: fmt.Sprintf("duplicate type name: %q", td.Name),
				Code:    ErrDuplicateType,
				Line:    td.Pos.Line,
			})
		}
		declared[td.Name] = true
	}

	known := func(name string) bool {
		if declared[name] {
			return true
		}
		if external != nil {
			if _, ok := external.ResolveType(name); ok {
				return true
			}
		}
		return false
	}

	for _, td := range p.Types {
		field := "type " + td.Name
		if td.IsEnum() {
			seen := map[string]bool{}
			for _, v := range td.Variants {
				// E102: duplicate enum variant
				if seen[v] {
					diags = append(diags, Diagnostic{
						Field:   field,
						Message: fmt.Sprintf("duplicate variant %q", v),
						Code:    ErrDuplicateVariant,
						Line:    td.Pos.Line,
					})
				}
				seen[v] = true
			}
			continue
		}
		diags = append(diags, checkFields(field, td.Fields, td.Pos.Line, known)...)
	}

	for _, f := range p.Flows {
		for _, param := range f.Params {
			diags = append(diags, checkTypeExpr(fmt.Sprintf("flow %s param %s", f.Name, param.Name), param.Type, f.Pos.Line, known)...)
		}
		diags = append(diags, checkTypeExpr(fmt.Sprintf("flow %s return", f.Name), f.Returns, f.Pos.Line, known)...)
		diags = append(diags, checkLoopControl("flow "+f.Name, f.Body, 0)...)
	}
	diags = append(diags, checkLoopControl("top level", p.Stmts, 0)...)

	return diags
}

func checkFields(field string, fields []ast.Field, line int, known func(string) bool) []Diagnostic {
	var diags []Diagnostic
	seen := map[string]bool{}
	for _, f := range fields {
		// E104: duplicate field
		if seen[f.Name] {
			diags = append(diags, Diagnostic{
				Field:   field,
				Message: fmt.Sprintf("duplicate field %q", f.Name),
				Code:    ErrDuplicateField,
				Line:    line,
			})
		}
		seen[f.Name] = true
		diags = append(diags, checkTypeExpr(field+"."+f.Name, f.Type, line, known)...)
	}
	return diags
}

func checkTypeExpr(field string, t *ast.TypeExpr, line int, known func(string) bool) []Diagnostic {
	if t == nil {
		return nil
	}
	if t.Name == "" {
		return checkFields(field, t.Fields, line, known)
	}

	var diags []Diagnostic
	switch t.Name {
	case "List", "Map":
		limit := 1
		if t.Name == "Map" {
			limit = 2
		}
		// E106: generic arity
		if len(t.Args) > limit {
			diags = append(diags, Diagnostic{
				Field:   field,
				Message: fmt.Sprintf("%s takes at most %d type arguments, got %d", t.Name, limit, len(t.Args)),
				Code:    ErrGenericArity,
				Line:    line,
			})
		}
		for _, a := range t.Args {
			diags = append(diags, checkTypeExpr(field, a, line, known)...)
		}
		return diags
	}

	if _, isRef := schema.FromTypeExpr(t).(schema.Ref); isRef && !known(t.Name) {
		// E103: undefined type
		diags = append(diags, Diagnostic{
			Field:   field,
			Message: fmt.Sprintf("undefined type %q", t.Name),
			Code:    ErrUndefinedType,
			Line:    line,
		})
	}
	return diags
}

// checkLoopControl reports break/continue that are not inside a loop.
// Inside a parallel branch they end the branch, so they are always
// allowed there. Select branches may break out of an enclosing loop.
func checkLoopControl(field string, stmts []ast.Stmt, loops int) []Diagnostic {
	var diags []Diagnostic
	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.Break, *ast.Continue:
			if loops == 0 {
				word := "break"
				if _, ok := n.(*ast.Continue); ok {
					word = "continue"
				}
				// E105: loop control outside loop
				diags = append(diags, Diagnostic{
					Field:   field,
					Message: word + " outside loop",
					Code:    ErrLoopControl,
					Line:    s.Position().Line,
				})
			}
		case *ast.If:
			diags = append(diags, checkLoopControl(field, n.Body, loops)...)
			for _, e := range n.Elifs {
				diags = append(diags, checkLoopControl(field, e.Body, loops)...)
			}
			diags = append(diags, checkLoopControl(field, n.Else, loops)...)
		case *ast.Loop:
			diags = append(diags, checkLoopControl(field, n.Body, loops+1)...)
		case *ast.For:
			diags = append(diags, checkLoopControl(field, n.Body, loops+1)...)
		case *ast.TryCatch:
			diags = append(diags, checkLoopControl(field, n.Body, loops)...)
			diags = append(diags, checkLoopControl(field, n.Catch, loops)...)
		case *ast.Parallel:
			for _, br := range n.Branches {
				diags = append(diags, checkLoopControl(field, br, 1)...)
			}
		case *ast.Select:
			for _, br := range n.Branches {
				diags = append(diags, checkLoopControl(field, br, loops)...)
			}
		}
	}
	return diags
}
