package engine

import (
	"math"
	"strings"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/ir"
)

// Names that resolve without a binding.
var predeclared = map[string]ir.Value{
	"stdin":  ir.Stdin(),
	"stdout": ir.Stdout(),
	"json":   ir.Module{Name: "json"},
	"http":   ir.Module{Name: "http"},
}

func (st *state) eval(e ast.Expr) (ir.Value, error) {
	switch e := e.(type) {
	case *ast.Ident:
		if v, ok := st.scope.Lookup(e.Name); ok {
			return v, nil
		}
		if v, ok := predeclared[e.Name]; ok {
			return v, nil
		}
		return nil, Errorf("undefined variable: %s", e.Name)

	case *ast.StringLit:
		return ir.String(e.Value), nil
	case *ast.IntLit:
		return ir.Int(e.Value), nil
	case *ast.FloatLit:
		return ir.Float(e.Value), nil
	case *ast.BoolLit:
		return ir.Bool(e.Value), nil
	case *ast.NoneLit:
		return ir.None{}, nil

	case *ast.FString:
		var b strings.Builder
		for _, part := range e.Parts {
			if part.Expr == nil {
				b.WriteString(part.Text)
				continue
			}
			v, err := st.eval(part.Expr)
			if err != nil {
				return nil, err
			}
			b.WriteString(ir.Display(v))
		}
		return ir.String(b.String()), nil

	case *ast.ListLit:
		items, err := st.evalList(e.Elems)
		if err != nil {
			return nil, err
		}
		return ir.NewList(items...), nil

	case *ast.MapLit:
		pairs := make([]ir.Pair, 0, len(e.Entries))
		for _, entry := range e.Entries {
			v, err := st.eval(entry.Value)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, ir.P(entry.Key, v))
		}
		return ir.NewMap(pairs...), nil

	case *ast.Call:
		return st.evalCall(e)

	case *ast.MethodCall:
		return st.evalMethodCall(e)

	case *ast.FieldAccess:
		x, err := st.eval(e.X)
		if err != nil {
			return nil, err
		}
		return field(x, e.Name)

	case *ast.Index:
		x, err := st.eval(e.X)
		if err != nil {
			return nil, err
		}
		idx, err := st.eval(e.Index)
		if err != nil {
			return nil, err
		}
		return index(x, idx)

	case *ast.Slice:
		return st.evalSlice(e)

	case *ast.Binary:
		return st.evalBinary(e)

	case *ast.Not:
		v, err := st.eval(e.X)
		if err != nil {
			return nil, err
		}
		return ir.Bool(!ir.Truthy(v)), nil

	case *ast.Neg:
		v, err := st.eval(e.X)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case ir.Int:
			return -n, nil
		case ir.Float:
			return -n, nil
		}
		return nil, Errorf("bad operand type for unary -: %s", kindOf(v))

	case *ast.Async:
		return st.spawn(e.X), nil
	}
	return nil, Errorf("unsupported expression %T", e)
}

func (st *state) evalList(exprs []ast.Expr) ([]ir.Value, error) {
	out := make([]ir.Value, len(exprs))
	for i, x := range exprs {
		v, err := st.eval(x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (st *state) evalBinary(e *ast.Binary) (ir.Value, error) {
	left, err := st.eval(e.Left)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.OpAnd:
		if !ir.Truthy(left) {
			return ir.Bool(false), nil
		}
		right, err := st.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.Truthy(right)), nil
	case ast.OpOr:
		if ir.Truthy(left) {
			return ir.Bool(true), nil
		}
		right, err := st.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.Truthy(right)), nil
	}

	right, err := st.eval(e.Right)
	if err != nil {
		return nil, err
	}
	return binary(e.Op, left, right)
}

// binary applies an arithmetic or comparison operator.
func binary(op ast.BinaryOp, left, right ir.Value) (ir.Value, error) {
	switch op {
	case ast.OpEq:
		return ir.Bool(ir.Equal(left, right)), nil
	case ast.OpNe:
		return ir.Bool(!ir.Equal(left, right)), nil
	case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		return compare(op, left, right)
	}

	switch l := left.(type) {
	case ir.String:
		if r, ok := right.(ir.String); ok && op == ast.OpAdd {
			return l + r, nil
		}
		if r, ok := right.(ir.Int); ok && op == ast.OpMul {
			if r <= 0 || len(l) == 0 {
				return ir.String(""), nil
			}
			if int64(r) > MaxSequenceLen/int64(len(l)) {
				return nil, Errorf("string repetition too large: %d * %d exceeds %d bytes", len(l), r, MaxSequenceLen)
			}
			return ir.String(strings.Repeat(string(l), int(r))), nil
		}
	case ir.List:
		if r, ok := right.(ir.List); ok && op == ast.OpAdd {
			return l.Concat(r), nil
		}
	case ir.Int:
		if r, ok := right.(ir.Int); ok {
			return intOp(op, l, r)
		}
		if r, ok := right.(ir.Float); ok {
			return floatOp(op, ir.Float(l), r)
		}
	case ir.Float:
		switch r := right.(type) {
		case ir.Float:
			return floatOp(op, l, r)
		case ir.Int:
			return floatOp(op, l, ir.Float(r))
		}
	}
	return nil, Errorf("unsupported operand types for %s: %s and %s", op, kindOf(left), kindOf(right))
}

// intOp applies op to two Ints. Results that do not fit in 64 bits are
// errors, never wrapped.
func intOp(op ast.BinaryOp, a, b ir.Int) (ir.Value, error) {
	switch op {
	case ast.OpAdd:
		c := a + b
		if (c > a) != (b > 0) {
			return nil, intOverflow(op, a, b)
		}
		return c, nil
	case ast.OpSub:
		c := a - b
		if (c < a) != (b > 0) {
			return nil, intOverflow(op, a, b)
		}
		return c, nil
	case ast.OpMul:
		if a == 0 || b == 0 {
			return ir.Int(0), nil
		}
		c := a * b
		if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, intOverflow(op, a, b)
		}
		return c, nil
	case ast.OpDiv:
		if b == 0 {
			return nil, Errorf("division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, intOverflow(op, a, b)
		}
		return a / b, nil
	case ast.OpMod:
		if b == 0 {
			return nil, Errorf("modulo by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	}
	return nil, Errorf("unsupported operator %s for Int", op)
}

func intOverflow(op ast.BinaryOp, a, b ir.Int) error {
	return Errorf("integer overflow: %d %s %d", a, op, b)
}

func floatOp(op ast.BinaryOp, a, b ir.Float) (ir.Value, error) {
	switch op {
	case ast.OpAdd:
		return a + b, nil
	case ast.OpSub:
		return a - b, nil
	case ast.OpMul:
		return a * b, nil
	case ast.OpDiv:
		if b == 0 {
			return nil, Errorf("division by zero")
		}
		return a / b, nil
	case ast.OpMod:
		if b == 0 {
			return nil, Errorf("modulo by zero")
		}
		return ir.Float(math.Mod(float64(a), float64(b))), nil
	}
	return nil, Errorf("unsupported operator %s for Float", op)
}

func compare(op ast.BinaryOp, left, right ir.Value) (ir.Value, error) {
	var c int
	switch l := left.(type) {
	case ir.String:
		r, ok := right.(ir.String)
		if !ok {
			return nil, Errorf("cannot compare %s and %s", kindOf(left), kindOf(right))
		}
		c = strings.Compare(string(l), string(r))
	default:
		a, aok := toFloat(left)
		b, bok := toFloat(right)
		if !aok || !bok {
			return nil, Errorf("cannot compare %s and %s", kindOf(left), kindOf(right))
		}
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	}
	switch op {
	case ast.OpLt:
		return ir.Bool(c < 0), nil
	case ast.OpGt:
		return ir.Bool(c > 0), nil
	case ast.OpLe:
		return ir.Bool(c <= 0), nil
	default:
		return ir.Bool(c >= 0), nil
	}
}

func toFloat(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.Int:
		return float64(n), true
	case ir.Float:
		return float64(n), true
	}
	return 0, false
}

// field implements `x.name`.
func field(x ir.Value, name string) (ir.Value, error) {
	switch v := x.(type) {
	case ir.String:
		if name == "length" {
			return ir.Int(len([]rune(string(v)))), nil
		}
	case ir.List:
		if name == "length" {
			return ir.Int(v.Len()), nil
		}
	case ir.Map:
		if fv, ok := v.Get(name); ok {
			return fv, nil
		}
		if name == "length" {
			return ir.Int(v.Len()), nil
		}
		return nil, Errorf("map has no key %q", name)
	}
	return nil, Errorf("%s has no field %q", kindOf(x), name)
}

func index(x, idx ir.Value) (ir.Value, error) {
	switch v := x.(type) {
	case ir.List:
		i, err := position(idx, v.Len())
		if err != nil {
			return nil, err
		}
		return v.At(i), nil
	case ir.String:
		runes := []rune(string(v))
		i, err := position(idx, len(runes))
		if err != nil {
			return nil, err
		}
		return ir.String(string(runes[i])), nil
	case ir.Map:
		k, ok := idx.(ir.String)
		if !ok {
			return nil, Errorf("map keys must be String, got %s", kindOf(idx))
		}
		if fv, ok := v.Get(string(k)); ok {
			return fv, nil
		}
		return nil, Errorf("key not found: %q", string(k))
	}
	return nil, Errorf("%s is not indexable", kindOf(x))
}

// position resolves a possibly negative index against length n.
func position(idx ir.Value, n int) (int, error) {
	i, ok := idx.(ir.Int)
	if !ok {
		return 0, Errorf("index must be Int, got %s", kindOf(idx))
	}
	pos := int(i)
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return 0, Errorf("index %d out of range (length %d)", int(i), n)
	}
	return pos, nil
}

func (st *state) evalSlice(e *ast.Slice) (ir.Value, error) {
	x, err := st.eval(e.X)
	if err != nil {
		return nil, err
	}
	var n int
	switch v := x.(type) {
	case ir.List:
		n = v.Len()
	case ir.String:
		n = len([]rune(string(v)))
	default:
		return nil, Errorf("%s cannot be sliced", kindOf(x))
	}

	bound := func(b ast.Expr, def int) (int, error) {
		if b == nil {
			return def, nil
		}
		v, err := st.eval(b)
		if err != nil {
			return 0, err
		}
		i, ok := v.(ir.Int)
		if !ok {
			return 0, Errorf("slice bound must be Int, got %s", kindOf(v))
		}
		pos := int(i)
		if pos < 0 {
			pos += n
		}
		return min(max(pos, 0), n), nil
	}
	lo, err := bound(e.Lo, 0)
	if err != nil {
		return nil, err
	}
	hi, err := bound(e.Hi, n)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		hi = lo
	}

	if l, ok := x.(ir.List); ok {
		return l.Slice(lo, hi), nil
	}
	return ir.String(string([]rune(string(x.(ir.String)))[lo:hi])), nil
}
