package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/cognos/internal/ir"
)

// ValidationError reports the first point at which a value failed to
// conform. Path locates it, e.g. `insights[2].score` or `scores["k"]`.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed at %s: %s", e.Path, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks values against types, resolving Refs through Resolver.
type Validator struct {
	Resolver Resolver
}

// Validate checks raw against t with no named types available.
func Validate(t Type, raw ir.Value) (ir.Value, error) {
	return Validator{}.Validate(t, raw)
}

// Validate checks raw against t and returns the coerced value. raw is never
// modified: Int values in Float positions are converted in the returned
// copy. Extra record fields pass through. The first failure is returned.
func (v Validator) Validate(t Type, raw ir.Value) (ir.Value, error) {
	return v.check(t, raw, "")
}

func (v Validator) check(t Type, raw ir.Value, path string) (ir.Value, error) {
	switch typ := t.(type) {
	case nil:
		return raw, nil
	case Primitive:
		return checkPrimitive(typ, raw, path)
	case Ref:
		resolved, err := v.resolve(typ, path)
		if err != nil {
			return nil, err
		}
		return v.check(resolved, raw, path)
	case *Enum:
		s, ok := raw.(ir.String)
		if !ok {
			return nil, mismatch(path, typ, raw)
		}
		if !typ.Has(string(s)) {
			return nil, &ValidationError{
				Path:   path,
				Reason: fmt.Sprintf("%s is not a valid %s (expected one of %s)", strconv.Quote(string(s)), typ.Name, quoteAll(typ.Variants)),
			}
		}
		return raw, nil
	case *List:
		l, ok := raw.(ir.List)
		if !ok {
			return nil, mismatch(path, typ, raw)
		}
		if typ.Elem == nil {
			return raw, nil
		}
		out := make([]ir.Value, 0, l.Len())
		for i, item := range l.All() {
			got, err := v.check(typ.Elem, item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, got)
		}
		return ir.NewList(out...), nil
	case *Map:
		m, ok := raw.(ir.Map)
		if !ok {
			return nil, mismatch(path, typ, raw)
		}
		if typ.Value == nil {
			return raw, nil
		}
		out := m
		for k, item := range m.All() {
			got, err := v.check(typ.Value, item, fmt.Sprintf("%s[%s]", path, strconv.Quote(k)))
			if err != nil {
				return nil, err
			}
			out = out.With(k, got)
		}
		return out, nil
	case *Record:
		m, ok := raw.(ir.Map)
		if !ok {
			return nil, mismatch(path, typ, raw)
		}
		out := m
		for _, f := range typ.Fields {
			fieldPath := joinField(path, f.Name)
			item, present := m.Get(f.Name)
			if !present {
				if f.Optional {
					continue
				}
				return nil, &ValidationError{Path: fieldPath, Reason: "missing required field"}
			}
			got, err := v.check(f.Type, item, fieldPath)
			if err != nil {
				return nil, err
			}
			out = out.With(f.Name, got)
		}
		return out, nil
	}
	return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("unsupported type %T", t)}
}

func (v Validator) resolve(r Ref, path string) (Type, error) {
	if v.Resolver != nil {
		if t, ok := v.Resolver.ResolveType(r.Name); ok {
			return t, nil
		}
	}
	return nil, &ValidationError{Path: path, Reason: "unknown type " + r.Name}
}

func checkPrimitive(p Primitive, raw ir.Value, path string) (ir.Value, error) {
	switch p {
	case Any:
		return raw, nil
	case Text:
		if _, ok := raw.(ir.String); ok {
			return raw, nil
		}
	case Int:
		if _, ok := raw.(ir.Int); ok {
			return raw, nil
		}
	case Float:
		switch n := raw.(type) {
		case ir.Float:
			return raw, nil
		case ir.Int:
			return ir.Float(n), nil
		}
	case Bool:
		if _, ok := raw.(ir.Bool); ok {
			return raw, nil
		}
	}
	return nil, mismatch(path, p, raw)
}

func mismatch(path string, want Type, got ir.Value) *ValidationError {
	kind := "none"
	if got != nil {
		kind = string(got.Kind())
	}
	return &ValidationError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, kind)}
}

func joinField(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func quoteAll(vs []string) string {
	q := make([]string, len(vs))
	for i, v := range vs {
		q[i] = strconv.Quote(v)
	}
	return strings.Join(q, " | ")
}
