package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders p back to canonical source text. Formatting a parsed
// program and parsing the result yields an equivalent program.
func Format(p *Program) string {
	var w printer
	for _, imp := range p.Imports {
		w.line(0, "import "+strconv.Quote(imp))
	}
	if len(p.Imports) > 0 {
		w.blank()
	}
	for _, t := range p.Types {
		w.typeDef(t)
		w.blank()
	}
	for _, f := range p.Flows {
		w.flow(f)
		w.blank()
	}
	w.block(0, p.Stmts)
	return strings.TrimRight(w.b.String(), "\n") + "\n"
}

// FormatExpr renders a single expression.
func FormatExpr(e Expr) string {
	return exprString(e)
}

type printer struct {
	b strings.Builder
}

func (w *printer) line(depth int, s string) {
	w.b.WriteString(strings.Repeat("    ", depth))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *printer) blank() { w.b.WriteByte('\n') }

func (w *printer) typeDef(t *TypeDef) {
	if t.IsEnum() {
		quoted := make([]string, len(t.Variants))
		for i, v := range t.Variants {
			quoted[i] = strconv.Quote(v)
		}
		w.line(0, fmt.Sprintf("type %s: %s", t.Name, strings.Join(quoted, " | ")))
		return
	}
	w.line(0, fmt.Sprintf("type %s:", t.Name))
	for _, f := range t.Fields {
		w.line(1, fieldString(f))
	}
}

func fieldString(f Field) string {
	name := f.Name
	if f.Optional {
		name += "?"
	}
	return name + ": " + TypeString(f.Type)
}

// TypeString renders a type expression.
func TypeString(t *TypeExpr) string {
	if t == nil {
		return "Any"
	}
	if t.Name == "" {
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = fieldString(f)
		}
		return "{" + strings.Join(fields, ", ") + "}"
	}
	if len(t.Args) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = TypeString(a)
	}
	return t.Name + "[" + strings.Join(args, ", ") + "]"
}

func (w *printer) flow(f *FlowDef) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		s := p.Name
		if p.Type != nil {
			s += ": " + TypeString(p.Type)
		}
		if p.Default != nil {
			s += " = " + exprString(p.Default)
		}
		params[i] = s
	}
	header := fmt.Sprintf("flow %s(%s)", f.Name, strings.Join(params, ", "))
	if f.Returns != nil {
		header += " -> " + TypeString(f.Returns)
	}
	w.line(0, header+":")
	w.body(1, f.Body)
}

// body prints a nested block, emitting pass for an empty one.
func (w *printer) body(depth int, stmts []Stmt) {
	if len(stmts) == 0 {
		w.line(depth, "pass")
		return
	}
	w.block(depth, stmts)
}

func (w *printer) block(depth int, stmts []Stmt) {
	for _, s := range stmts {
		w.stmt(depth, s)
	}
}

func (w *printer) stmt(depth int, s Stmt) {
	switch n := s.(type) {
	case *Assign:
		w.line(depth, n.Name+" = "+exprString(n.Value))
	case *Return:
		if n.Value == nil {
			w.line(depth, "return")
		} else {
			w.line(depth, "return "+exprString(n.Value))
		}
	case *Break:
		w.line(depth, "break")
	case *Continue:
		w.line(depth, "continue")
	case *Pass:
		w.line(depth, "pass")
	case *If:
		w.line(depth, "if "+exprString(n.Cond)+":")
		w.body(depth+1, n.Body)
		for _, e := range n.Elifs {
			w.line(depth, "elif "+exprString(e.Cond)+":")
			w.body(depth+1, e.Body)
		}
		if n.Else != nil {
			w.line(depth, "else:")
			w.body(depth+1, n.Else)
		}
	case *Loop:
		if n.Max != nil {
			w.line(depth, "loop max="+exprString(n.Max)+":")
		} else {
			w.line(depth, "loop:")
		}
		w.body(depth+1, n.Body)
	case *For:
		vars := n.Var
		if n.ValueVar != "" {
			vars += ", " + n.ValueVar
		}
		w.line(depth, "for "+vars+" in "+exprString(n.Iter)+":")
		w.body(depth+1, n.Body)
	case *TryCatch:
		w.line(depth, "try:")
		w.body(depth+1, n.Body)
		if n.ErrVar != "" {
			w.line(depth, "catch "+n.ErrVar+":")
		} else {
			w.line(depth, "catch:")
		}
		w.body(depth+1, n.Catch)
	case *Parallel:
		w.branches(depth, "parallel:", n.Branches)
	case *Select:
		w.branches(depth, "select:", n.Branches)
	case *ExprStmt:
		w.line(depth, exprString(n.X))
	}
}

func (w *printer) branches(depth int, header string, branches [][]Stmt) {
	w.line(depth, header)
	for _, br := range branches {
		w.line(depth+1, "branch:")
		w.body(depth+2, br)
	}
}

// precedence levels, lowest first.
func precedence(op BinaryOp) int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return 4
	case OpAdd, OpSub:
		return 5
	default:
		return 6
	}
}

func exprString(e Expr) string {
	switch n := e.(type) {
	case *Ident:
		return n.Name
	case *StringLit:
		return strconv.Quote(n.Value)
	case *IntLit:
		return strconv.FormatInt(n.Value, 10)
	case *FloatLit:
		s := strconv.FormatFloat(n.Value, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case *BoolLit:
		return strconv.FormatBool(n.Value)
	case *NoneLit:
		return "none"
	case *FString:
		var b strings.Builder
		b.WriteString(`f"`)
		for _, part := range n.Parts {
			if part.Expr != nil {
				b.WriteString("{" + exprString(part.Expr) + "}")
				continue
			}
			q := strconv.Quote(part.Text)
			q = q[1 : len(q)-1]
			q = strings.ReplaceAll(q, "{", "{{")
			q = strings.ReplaceAll(q, "}", "}}")
			b.WriteString(q)
		}
		b.WriteByte('"')
		return b.String()
	case *ListLit:
		return "[" + joinExprs(n.Elems) + "]"
	case *MapLit:
		entries := make([]string, len(n.Entries))
		for i, en := range n.Entries {
			entries[i] = strconv.Quote(en.Key) + ": " + exprString(en.Value)
		}
		return "{" + strings.Join(entries, ", ") + "}"
	case *Call:
		return n.Name + "(" + argsString(n.Args, n.Kwargs) + ")"
	case *MethodCall:
		return postfixOperand(n.Recv) + "." + n.Method + "(" + argsString(n.Args, n.Kwargs) + ")"
	case *FieldAccess:
		return postfixOperand(n.X) + "." + n.Name
	case *Index:
		return postfixOperand(n.X) + "[" + exprString(n.Index) + "]"
	case *Slice:
		lo, hi := "", ""
		if n.Lo != nil {
			lo = exprString(n.Lo)
		}
		if n.Hi != nil {
			hi = exprString(n.Hi)
		}
		return postfixOperand(n.X) + "[" + lo + ":" + hi + "]"
	case *Binary:
		p := precedence(n.Op)
		return operand(n.Left, p, false) + " " + string(n.Op) + " " + operand(n.Right, p, true)
	case *Not:
		return "not " + operand(n.X, 3, false)
	case *Neg:
		return "-" + postfixOperand(n.X)
	case *Async:
		return "async " + exprString(n.X)
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

// operand parenthesizes a binary operand that binds looser than its parent.
// Right operands of equal precedence are parenthesized to keep left
// associativity.
func operand(e Expr, parent int, right bool) string {
	s := exprString(e)
	switch n := e.(type) {
	case *Binary:
		p := precedence(n.Op)
		if p < parent || (right && p == parent) {
			return "(" + s + ")"
		}
	case *Not:
		if parent > 3 {
			return "(" + s + ")"
		}
	case *Async:
		return "(" + s + ")"
	}
	return s
}

func postfixOperand(e Expr) string {
	switch e.(type) {
	case *Binary, *Not, *Neg, *Async:
		return "(" + exprString(e) + ")"
	}
	return exprString(e)
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = exprString(e)
	}
	return strings.Join(parts, ", ")
}

func argsString(args []Expr, kwargs []Kwarg) string {
	parts := make([]string, 0, len(args)+len(kwargs))
	for _, a := range args {
		parts = append(parts, exprString(a))
	}
	for _, kw := range kwargs {
		parts = append(parts, kw.Name+"="+exprString(kw.Value))
	}
	return strings.Join(parts, ", ")
}
