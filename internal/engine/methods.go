package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/ir"
)

func (st *state) evalMethodCall(c *ast.MethodCall) (ir.Value, error) {
	recv, err := st.eval(c.Recv)
	if err != nil {
		return nil, err
	}
	args, _, err := st.evalArgs(c.Args, c.Kwargs)
	if err != nil {
		return nil, err
	}

	switch r := recv.(type) {
	case ir.Module:
		return st.moduleCall(r.Name, c.Method, args)
	case ir.Handle:
		return st.handleMethod(r, c.Method, args)
	case ir.String:
		return stringMethod(string(r), c.Method, args)
	case ir.List:
		return listMethod(r, c.Method, args)
	case ir.Map:
		return mapMethod(r, c.Method, args)
	}
	return nil, Errorf("%s has no method %s", kindOf(recv), c.Method)
}

func (st *state) moduleCall(module, method string, args []ir.Value) (ir.Value, error) {
	name := module + "." + method
	switch name {
	case "json.parse":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		src, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		v, err := ir.ParseJSON([]byte(src))
		if err != nil {
			return nil, Errorf("json.parse: %v", err)
		}
		return v, nil

	case "json.stringify":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		b, err := ir.MarshalJSON(args[0])
		if err != nil {
			return nil, Errorf("json.stringify: %v", err)
		}
		return ir.String(b), nil

	case "http.get":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		url, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		return st.perform(effect.HTTPGet(url))

	case "http.post":
		if err := arity(name, args, 2, 2); err != nil {
			return nil, err
		}
		url, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		body, err := requestBody(args[1])
		if err != nil {
			return nil, err
		}
		return st.perform(effect.HTTPPost(url, body))
	}
	return nil, NotFoundf("unknown function: %s", name)
}

// requestBody sends strings as-is and encodes anything else as JSON.
func requestBody(v ir.Value) (string, error) {
	if s, ok := v.(ir.String); ok {
		return string(s), nil
	}
	b, err := ir.MarshalJSON(v)
	if err != nil {
		return "", Errorf("http.post: %v", err)
	}
	return string(b), nil
}

func (st *state) handleMethod(h ir.Handle, method string, args []ir.Value) (ir.Value, error) {
	switch method {
	case "read":
		if err := arity("read", args, 0, 0); err != nil {
			return nil, err
		}
		return st.readHandle(h)
	case "write":
		if err := arity("write", args, 1, 1); err != nil {
			return nil, err
		}
		return st.writeHandle(h, args[0])
	}
	return nil, Errorf("Handle has no method %s", method)
}

func stringMethod(s, method string, args []ir.Value) (ir.Value, error) {
	strArg := func(i int) (string, error) { return stringArg(method, args[i]) }

	switch method {
	case "upper", "lower", "strip", "trim":
		if err := arity(method, args, 0, 0); err != nil {
			return nil, err
		}
		// Casers carry state and are not shared between goroutines.
		switch method {
		case "upper":
			return ir.String(cases.Upper(language.Und).String(s)), nil
		case "lower":
			return ir.String(cases.Lower(language.Und).String(s)), nil
		}
		return ir.String(strings.TrimSpace(s)), nil

	case "split":
		if err := arity(method, args, 0, 1); err != nil {
			return nil, err
		}
		var parts []string
		if len(args) == 0 {
			parts = strings.Fields(s)
		} else {
			sep, err := strArg(0)
			if err != nil {
				return nil, err
			}
			parts = strings.Split(s, sep)
		}
		items := make([]ir.Value, len(parts))
		for i, p := range parts {
			items[i] = ir.String(p)
		}
		return ir.NewList(items...), nil

	case "replace":
		if err := arity(method, args, 2, 2); err != nil {
			return nil, err
		}
		old, err := strArg(0)
		if err != nil {
			return nil, err
		}
		repl, err := strArg(1)
		if err != nil {
			return nil, err
		}
		return ir.String(strings.ReplaceAll(s, old, repl)), nil

	case "contains", "starts_with", "ends_with":
		if err := arity(method, args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := strArg(0)
		if err != nil {
			return nil, err
		}
		switch method {
		case "contains":
			return ir.Bool(strings.Contains(s, sub)), nil
		case "starts_with":
			return ir.Bool(strings.HasPrefix(s, sub)), nil
		}
		return ir.Bool(strings.HasSuffix(s, sub)), nil

	case "join":
		if err := arity(method, args, 1, 1); err != nil {
			return nil, err
		}
		l, ok := args[0].(ir.List)
		if !ok {
			return nil, Errorf("join() expects a List, got %s", kindOf(args[0]))
		}
		return ir.String(joinList(l, s)), nil
	}
	return nil, Errorf("String has no method %s", method)
}

func listMethod(l ir.List, method string, args []ir.Value) (ir.Value, error) {
	switch method {
	case "append":
		if err := arity(method, args, 1, 1); err != nil {
			return nil, err
		}
		return l.Append(args[0]), nil
	case "contains":
		if err := arity(method, args, 1, 1); err != nil {
			return nil, err
		}
		for _, v := range l.All() {
			if ir.Equal(v, args[0]) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case "join":
		if err := arity(method, args, 0, 1); err != nil {
			return nil, err
		}
		sep := ""
		if len(args) == 1 {
			s, err := stringArg(method, args[0])
			if err != nil {
				return nil, err
			}
			sep = s
		}
		return ir.String(joinList(l, sep)), nil
	}
	return nil, Errorf("List has no method %s", method)
}

func mapMethod(m ir.Map, method string, args []ir.Value) (ir.Value, error) {
	switch method {
	case "keys", "values":
		if err := arity(method, args, 0, 0); err != nil {
			return nil, err
		}
		if method == "keys" {
			return mapKeys(m), nil
		}
		return mapValues(m), nil
	case "get":
		if err := arity(method, args, 1, 2); err != nil {
			return nil, err
		}
		key, err := stringArg(method, args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return ir.None{}, nil
	case "contains":
		if err := arity(method, args, 1, 1); err != nil {
			return nil, err
		}
		key, err := stringArg(method, args[0])
		if err != nil {
			return nil, err
		}
		return ir.Bool(m.Has(key)), nil
	}
	return nil, Errorf("Map has no method %s", method)
}

func joinList(l ir.List, sep string) string {
	parts := make([]string, 0, l.Len())
	for _, v := range l.All() {
		parts = append(parts, ir.Display(v))
	}
	return strings.Join(parts, sep)
}
