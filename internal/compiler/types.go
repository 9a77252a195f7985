// Package compiler compiles CUE type definitions into schema types.
//
// Structured-output shapes can be authored in CUE instead of (or in
// addition to) `type` declarations in a program:
//
//	#Verdict: "yes" | "no"
//	#Insight: {
//		title:  string
//		score:  number
//		tags?: [...string]
//	}
//
// Every top-level definition becomes a named schema.Type; the leading `#`
// is dropped from the name.
package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cognos/internal/schema"
)

// CompileFile reads and compiles a CUE file.
func CompileFile(path string) (schema.Types, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return CompileSource(path, string(src))
}

// CompileSource compiles CUE source. filename is used in error positions.
func CompileSource(filename, src string) (schema.Types, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileTypes(v)
}

// CompileTypes compiles every definition in v.
// Uses CUE SDK's Go API directly (not CLI subprocess).
func CompileTypes(v cue.Value) (schema.Types, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields(cue.Definitions(true))
	if err != nil {
		return nil, formatCUEError(err)
	}

	types := schema.Types{}
	for iter.Next() {
		label := iter.Label()
		if !strings.HasPrefix(label, "#") {
			continue
		}
		name := strings.TrimPrefix(label, "#")
		t, err := compileType(iter.Value(), name)
		if err != nil {
			return nil, err
		}
		types[name] = t
	}
	return types, nil
}

// compileType converts one CUE value. name is set for top-level
// definitions and empty for nested values.
func compileType(v cue.Value, name string) (schema.Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	// A nested reference to another definition stays a reference so that
	// error messages use the definition's name.
	if name == "" {
		if ref, ok := definitionRef(v); ok {
			return schema.Ref{Name: ref}, nil
		}
	}

	if variants, ok := stringDisjunction(v); ok {
		return &schema.Enum{Name: name, Variants: variants}, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.Text, nil
	case cue.IntKind:
		return schema.Int, nil
	case cue.FloatKind, cue.NumberKind:
		return schema.Float, nil
	case cue.BoolKind:
		return schema.Bool, nil
	case cue.TopKind:
		return schema.Any, nil
	case cue.ListKind:
		return compileList(v)
	case cue.StructKind:
		return compileStruct(v, name)
	default:
		return nil, &CompileError{
			Field:   fieldName(name),
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func compileList(v cue.Value) (schema.Type, error) {
	elem := v.LookupPath(cue.MakePath(cue.AnyIndex))
	if !elem.Exists() {
		return &schema.List{}, nil
	}
	t, err := compileType(elem, "")
	if err != nil {
		return nil, err
	}
	if t == schema.Any {
		return &schema.List{}, nil
	}
	return &schema.List{Elem: t}, nil
}

// compileStruct produces a Record when the struct declares fields and a
// Map when it only has a `[string]: T` pattern.
func compileStruct(v cue.Value, name string) (schema.Type, error) {
	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}

	rec := &schema.Record{Name: name}
	for iter.Next() {
		ft, err := compileType(iter.Value(), "")
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, schema.Field{
			Name:     iter.Label(),
			Type:     ft,
			Optional: iter.IsOptional(),
		})
	}
	if len(rec.Fields) > 0 {
		return rec, nil
	}

	pattern := v.LookupPath(cue.MakePath(cue.AnyString))
	if !pattern.Exists() {
		return rec, nil
	}
	vt, err := compileType(pattern, "")
	if err != nil {
		return nil, err
	}
	if vt == schema.Any {
		return &schema.Map{}, nil
	}
	return &schema.Map{Value: vt}, nil
}

// definitionRef reports whether v is a plain reference to a definition.
func definitionRef(v cue.Value) (string, bool) {
	_, path := v.ReferencePath()
	if sels := path.Selectors(); len(sels) > 0 {
		last := sels[len(sels)-1]
		if !last.IsDefinition() {
			return "", false
		}
		return strings.TrimPrefix(last.String(), "#"), true
	}

	// Structure sharing can hide the path; fall back to the expression.
	op, args := v.Expr()
	if op != cue.SelectorOp || len(args) != 2 {
		return "", false
	}
	label, err := args[1].String()
	if err != nil || !strings.HasPrefix(label, "#") {
		return "", false
	}
	return strings.TrimPrefix(label, "#"), true
}

// stringDisjunction reports whether v is a disjunction of string literals.
func stringDisjunction(v cue.Value) ([]string, bool) {
	op, args := v.Expr()
	if op != cue.OrOp || len(args) == 0 {
		return nil, false
	}
	variants := make([]string, 0, len(args))
	for _, a := range args {
		if a.Kind() != cue.StringKind {
			return nil, false
		}
		s, err := a.String()
		if err != nil {
			return nil, false
		}
		variants = append(variants, s)
	}
	return variants, true
}

func fieldName(name string) string {
	if name == "" {
		return "type"
	}
	return "#" + name
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
