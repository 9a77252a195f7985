package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cognos/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	Errors []string
}

// Err returns the problems as one error, or nil for a valid query.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Errors, "; "))
}

// Validate checks that every field exists in the query's source and that
// every value fits its field's type.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

// validator accumulates errors during traversal.
type validator struct {
	fields map[string]FieldType
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	fields, ok := Fields[sel.From]
	if !ok {
		v.addError("unknown source %q", sel.From)
		return
	}
	v.fields = fields
	v.validatePredicate(sel.Filter)
}

// field looks name up in the current source.
func (v *validator) field(name string) (FieldType, bool) {
	t, ok := v.fields[name]
	if !ok {
		v.addError("unknown field %q", name)
	}
	return t, ok
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// No filter.
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case OneOf:
		v.validateOneOf(pred)
	case *OneOf:
		v.validateOneOf(*pred)
	case Since:
		v.validateSince(pred)
	case *Since:
		v.validateSince(*pred)
	case BoundEquals:
		v.validateBound(pred)
	case *BoundEquals:
		v.validateBound(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if t, ok := v.field(eq.Field); ok {
		v.validateValue(eq.Field, t, eq.Value)
	}
}

func (v *validator) validateOneOf(in OneOf) {
	t, ok := v.field(in.Field)
	if !ok {
		return
	}
	if len(in.Values) == 0 {
		v.addError("field %q matched against an empty set", in.Field)
		return
	}
	for _, val := range in.Values {
		v.validateValue(in.Field, t, val)
	}
}

func (v *validator) validateSince(s Since) {
	t, ok := v.field(s.Field)
	if !ok {
		return
	}
	if t != FieldTime {
		v.addError("field %q is %s; only time fields take a lower bound", s.Field, t)
	}
	if s.Time.IsZero() {
		v.addError("field %q bounded by the zero time", s.Field)
	}
}

func (v *validator) validateBound(b BoundEquals) {
	v.field(b.Field)
	if b.Param == "" {
		v.addError("field %q bound to an unnamed parameter", b.Field)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

// validateValue checks that val can be compared with a field of type t.
func (v *validator) validateValue(field string, t FieldType, val ir.Value) {
	if val == nil || val.Kind() == ir.KindNone {
		v.addError("field %q compared to none", field)
		return
	}
	switch t {
	case FieldText:
		if val.Kind() != ir.KindString {
			v.addError("field %q is text, got %s", field, val.Kind())
		}
	case FieldInt:
		if val.Kind() != ir.KindInt {
			v.addError("field %q is int, got %s", field, val.Kind())
		}
	case FieldTime:
		v.addError("field %q is a time; use a lower bound", field)
	}
}
