package queryir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cognos/internal/ir"
)

// ParseTerm parses one filter term over src:
//
//	field=value        Equals
//	field=v1,v2,...    OneOf
//	field>=instant     Since (time fields; RFC 3339 or YYYY-MM-DD)
//
// Int fields parse their values as integers.
func ParseTerm(src Source, term string) (Predicate, error) {
	fields, ok := Fields[src]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", src)
	}

	if name, raw, ok := strings.Cut(term, ">="); ok {
		t, known := fields[name]
		if !known {
			return nil, fmt.Errorf("term %q: unknown field %q", term, name)
		}
		if t != FieldTime {
			return nil, fmt.Errorf("term %q: field %q is %s; only time fields take >=", term, name, t)
		}
		at, err := parseInstant(raw)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		return &Since{Field: name, Time: at}, nil
	}

	name, raw, ok := strings.Cut(term, "=")
	if !ok || name == "" {
		return nil, fmt.Errorf("term %q: expected field=value or field>=time", term)
	}
	t, known := fields[name]
	if !known {
		return nil, fmt.Errorf("term %q: unknown field %q", term, name)
	}
	if t == FieldTime {
		return nil, fmt.Errorf("term %q: field %q is a time; use %s>=", term, name, name)
	}

	parts := strings.Split(raw, ",")
	values := make([]ir.Value, len(parts))
	for i, p := range parts {
		v, err := parseValue(t, p)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		values[i] = v
	}
	if len(values) == 1 {
		return &Equals{Field: name, Value: values[0]}, nil
	}
	return &OneOf{Field: name, Values: values}, nil
}

// ParseTerms parses every term and combines them with Where.
func ParseTerms(src Source, terms []string) (Predicate, error) {
	preds := make([]Predicate, 0, len(terms))
	for _, term := range terms {
		p, err := ParseTerm(src, term)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return Where(preds...), nil
}

func parseValue(t FieldType, raw string) (ir.Value, error) {
	if t == FieldInt {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", raw)
		}
		return ir.Int(n), nil
	}
	return ir.String(raw), nil
}

func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339 or YYYY-MM-DD)", raw)
}
