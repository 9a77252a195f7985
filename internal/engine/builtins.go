package engine

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/ir"
)

// builtin is a function callable by name from a program.
type builtin func(st *state, args []ir.Value, kw ir.Map) (ir.Value, error)

// builtins is populated in init to break the initialization cycle through
// eval and invoke.
var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"print":   biPrint,
		"emit":    biPrint,
		"read":    biRead,
		"receive": biReceive,
		"write":   biWrite,
		"file":    biFile,
		"run":     biShell,
		"shell":   biShell,
		"invoke":  biInvoke,
		"eval":    biEval,
		"await":   biAwait,
		"cancel":  biCancel,
		"sleep":   biSleep,
		"len":     biLen,
		"str":     biStr,
		"int":     biInt,
		"float":   biFloat,
		"bool":    biBool,
		"range":   biRange,
		"keys":    biKeys,
		"values":  biValues,
		"remove":  biRemove,
	}
}

// BuiltinNames lists the functions that resolve without a flow definition,
// sorted.
func BuiltinNames() []string {
	names := append(slices.Collect(maps.Keys(builtins)), "think", "validate")
	slices.Sort(names)
	return names
}

func (st *state) evalCall(c *ast.Call) (ir.Value, error) {
	switch c.Name {
	case "think":
		return st.think(c)
	case "validate":
		return st.validate(c)
	}

	args, kw, err := st.evalArgs(c.Args, c.Kwargs)
	if err != nil {
		return nil, err
	}
	if fn, ok := builtins[c.Name]; ok {
		return fn(st, args, kw)
	}
	if flow, ok := st.in.registry.Flow(c.Name); ok {
		return st.callFlow(flow, args, kw)
	}
	return nil, NotFoundf("unknown function: %s", c.Name)
}

func (st *state) evalArgs(args []ast.Expr, kwargs []ast.Kwarg) ([]ir.Value, ir.Map, error) {
	vals, err := st.evalList(args)
	if err != nil {
		return nil, ir.Map{}, err
	}
	pairs := make([]ir.Pair, 0, len(kwargs))
	for _, kw := range kwargs {
		v, err := st.eval(kw.Value)
		if err != nil {
			return nil, ir.Map{}, err
		}
		pairs = append(pairs, ir.P(kw.Name, v))
	}
	return vals, ir.NewMap(pairs...), nil
}

func arity(name string, args []ir.Value, lo, hi int) error {
	switch {
	case len(args) < lo && lo == hi:
		return Errorf("%s() takes %d arguments, got %d", name, lo, len(args))
	case len(args) < lo:
		return Errorf("%s() takes at least %d arguments, got %d", name, lo, len(args))
	case len(args) > hi:
		return Errorf("%s() takes at most %d arguments, got %d", name, hi, len(args))
	}
	return nil
}

func stringArg(name string, v ir.Value) (string, error) {
	s, ok := v.(ir.String)
	if !ok {
		return "", Errorf("%s() expects String, got %s", name, kindOf(v))
	}
	return string(s), nil
}

func biPrint(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ir.Display(a)
	}
	return st.perform(effect.WriteOutput(strings.Join(parts, " ")))
}

func biRead(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("read", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return st.perform(effect.ReadLine())
	}
	return st.readHandle(args[0])
}

func (st *state) readHandle(v ir.Value) (ir.Value, error) {
	switch h := v.(type) {
	case ir.Handle:
		switch h.Endpoint {
		case ir.HandleStdin:
			return st.perform(effect.ReadLine())
		case ir.HandleFile:
			return st.perform(effect.ReadFile(h.Path))
		}
		return nil, Errorf("cannot read from %s", h.Endpoint)
	case ir.String:
		return st.perform(effect.ReadFile(string(h)))
	}
	return nil, Errorf("read() expects a handle, got %s", kindOf(v))
}

func biReceive(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("receive", args, 0, 0); err != nil {
		return nil, err
	}
	return st.perform(effect.ReadLine())
}

func biWrite(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("write", args, 2, 2); err != nil {
		return nil, err
	}
	return st.writeHandle(args[0], args[1])
}

func (st *state) writeHandle(target, v ir.Value) (ir.Value, error) {
	switch h := target.(type) {
	case ir.Handle:
		switch h.Endpoint {
		case ir.HandleStdout:
			return st.perform(effect.WriteOutput(ir.Display(v)))
		case ir.HandleFile:
			return st.perform(effect.WriteFile(h.Path, ir.Display(v)))
		}
		return nil, Errorf("cannot write to %s", h.Endpoint)
	case ir.String:
		return st.perform(effect.WriteFile(string(h), ir.Display(v)))
	}
	return nil, Errorf("write() expects a handle, got %s", kindOf(target))
}

func biFile(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("file", args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg("file", args[0])
	if err != nil {
		return nil, err
	}
	return ir.File(path), nil
}

func biShell(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("run", args, 1, 1); err != nil {
		return nil, err
	}
	return st.perform(effect.Shell(ir.Display(args[0])))
}

func biInvoke(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("invoke", args, 1, 2); err != nil {
		return nil, err
	}
	name, err := stringArg("invoke", args[0])
	if err != nil {
		return nil, err
	}
	named := ir.NewMap()
	if len(args) == 2 {
		m, ok := args[1].(ir.Map)
		if !ok {
			return nil, Errorf("invoke() arguments must be a Map, got %s", kindOf(args[1]))
		}
		named = m
	}
	return st.invoke(name, named)
}

func biEval(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("eval", args, 1, 2); err != nil {
		return nil, err
	}
	src, err := stringArg("eval", args[0])
	if err != nil {
		return nil, err
	}
	vars := ir.NewMap()
	if len(args) == 2 {
		m, ok := args[1].(ir.Map)
		if !ok {
			return nil, Errorf("eval() variables must be a Map, got %s", kindOf(args[1]))
		}
		vars = m
	}
	return st.evalSource(src, vars)
}

func biAwait(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("await", args, 1, 1); err != nil {
		return nil, err
	}
	return st.await(args[0])
}

func biCancel(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("cancel", args, 1, 1); err != nil {
		return nil, err
	}
	return st.cancelTask(args[0])
}

// biSleep suspends for the given number of seconds, waking early on
// cancellation.
func biSleep(st *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("sleep", args, 1, 1); err != nil {
		return nil, err
	}
	secs, ok := toFloat(args[0])
	if !ok {
		return nil, Errorf("sleep() expects a number, got %s", kindOf(args[0]))
	}
	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return ir.None{}, nil
	case <-st.ctx.Done():
		return nil, &cancelledError{cause: context.Cause(st.ctx)}
	}
}

func biLen(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case ir.String:
		return ir.Int(len([]rune(string(v)))), nil
	case ir.List:
		return ir.Int(v.Len()), nil
	case ir.Map:
		return ir.Int(v.Len()), nil
	}
	return nil, Errorf("len() of %s", kindOf(args[0]))
}

func biStr(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("str", args, 1, 1); err != nil {
		return nil, err
	}
	return ir.String(ir.Display(args[0])), nil
}

func biInt(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case ir.Int:
		return v, nil
	case ir.Float:
		return ir.Int(v), nil
	case ir.Bool:
		if v {
			return ir.Int(1), nil
		}
		return ir.Int(0), nil
	case ir.String:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return nil, Errorf("int(): invalid literal %q", string(v))
		}
		return ir.Int(n), nil
	}
	return nil, Errorf("int() of %s", kindOf(args[0]))
}

func biFloat(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("float", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case ir.Int:
		return ir.Float(v), nil
	case ir.Float:
		return v, nil
	case ir.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, Errorf("float(): invalid literal %q", string(v))
		}
		return ir.Float(f), nil
	}
	return nil, Errorf("float() of %s", kindOf(args[0]))
}

func biBool(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("bool", args, 1, 1); err != nil {
		return nil, err
	}
	return ir.Bool(ir.Truthy(args[0])), nil
}

// biRange implements range(n) and range(start, stop).
func biRange(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	if err := arity("range", args, 1, 2); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(ir.Int)
		if !ok {
			return nil, Errorf("range() expects Int, got %s", kindOf(a))
		}
		bounds[i] = int64(n)
	}
	start, stop := int64(0), bounds[0]
	if len(bounds) == 2 {
		start, stop = bounds[0], bounds[1]
	}
	if stop > start && uint64(stop-start) > MaxSequenceLen {
		return nil, Errorf("range() too large: %d elements exceeds %d", uint64(stop-start), MaxSequenceLen)
	}
	var items []ir.Value
	for i := start; i < stop; i++ {
		items = append(items, ir.Int(i))
	}
	return ir.NewList(items...), nil
}

func mapArg(name string, args []ir.Value, n int) (ir.Map, error) {
	if err := arity(name, args, n, n); err != nil {
		return ir.Map{}, err
	}
	m, ok := args[0].(ir.Map)
	if !ok {
		return ir.Map{}, Errorf("%s() expects a Map, got %s", name, kindOf(args[0]))
	}
	return m, nil
}

func biKeys(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	m, err := mapArg("keys", args, 1)
	if err != nil {
		return nil, err
	}
	return mapKeys(m), nil
}

func biValues(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	m, err := mapArg("values", args, 1)
	if err != nil {
		return nil, err
	}
	return mapValues(m), nil
}

// biRemove returns a copy of the map without the key.
func biRemove(_ *state, args []ir.Value, _ ir.Map) (ir.Value, error) {
	m, err := mapArg("remove", args, 2)
	if err != nil {
		return nil, err
	}
	key, err := stringArg("remove", args[1])
	if err != nil {
		return nil, err
	}
	return m.Without(key), nil
}

func mapKeys(m ir.Map) ir.List {
	keys := m.Keys()
	items := make([]ir.Value, len(keys))
	for i, k := range keys {
		items[i] = ir.String(k)
	}
	return ir.NewList(items...)
}

func mapValues(m ir.Map) ir.List {
	items := make([]ir.Value, 0, m.Len())
	for _, v := range m.All() {
		items = append(items, v)
	}
	return ir.NewList(items...)
}
