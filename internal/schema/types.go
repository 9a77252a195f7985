// Package schema describes the record, enum and container shapes that
// structured output is validated against.
//
// Types come from `type` declarations in a program (FromTypeDef) or from
// CUE definitions compiled by the compiler package. Named references are
// resolved lazily through a Resolver, so recursive and forward references
// work without a separate linking pass.
package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/cognos/internal/ast"
)

// Type is a sealed interface over schema types.
type Type interface {
	isType()
	String() string
}

// Primitive is a scalar type.
type Primitive string

const (
	Text  Primitive = "Text"
	Int   Primitive = "Int"
	Float Primitive = "Float"
	Bool  Primitive = "Bool"
	Any   Primitive = "Any"
)

func (Primitive) isType()          {}
func (p Primitive) String() string { return string(p) }

// List is List[Elem]. A nil Elem accepts any contents.
type List struct {
	Elem Type
}

func (*List) isType() {}

func (l *List) String() string {
	if l.Elem == nil {
		return "List"
	}
	return "List[" + l.Elem.String() + "]"
}

// Map is Map[Text, Value]. Keys are always strings; a nil Value accepts
// any contents.
type Map struct {
	Value Type
}

func (*Map) isType() {}

func (m *Map) String() string {
	if m.Value == nil {
		return "Map"
	}
	return "Map[Text, " + m.Value.String() + "]"
}

// Field is a record field.
type Field struct {
	Name     string
	Type     Type
	Optional bool
}

// Record is a named (or inline, when Name is empty) record shape.
type Record struct {
	Name   string
	Fields []Field
}

func (*Record) isType() {}

func (r *Record) String() string {
	if r.Name != "" {
		return r.Name
	}
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		opt := ""
		if f.Optional {
			opt = "?"
		}
		parts[i] = fmt.Sprintf("%s%s: %s", f.Name, opt, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Field returns the field named name.
func (r *Record) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Enum is a closed set of string literals.
type Enum struct {
	Name     string
	Variants []string
}

func (*Enum) isType() {}

func (e *Enum) String() string { return e.Name }

// Has reports whether s is one of the declared variants.
func (e *Enum) Has(s string) bool {
	for _, v := range e.Variants {
		if v == s {
			return true
		}
	}
	return false
}

// Ref names a type resolved at validation time.
type Ref struct {
	Name string
}

func (Ref) isType() {}

func (r Ref) String() string { return r.Name }

// Resolver looks up named types.
type Resolver interface {
	ResolveType(name string) (Type, bool)
}

// Types is a map-backed Resolver.
type Types map[string]Type

// ResolveType implements Resolver.
func (t Types) ResolveType(name string) (Type, bool) {
	typ, ok := t[name]
	return typ, ok
}

// primitiveAliases maps accepted spellings to primitives.
var primitiveAliases = map[string]Primitive{
	"Text":   Text,
	"String": Text,
	"Str":    Text,
	"Int":    Int,
	"Float":  Float,
	"Number": Float,
	"Bool":   Bool,
	"Any":    Any,
}

// FromTypeExpr converts a parsed type reference. Unknown names become
// Refs.
func FromTypeExpr(t *ast.TypeExpr) Type {
	if t == nil {
		return Any
	}
	if t.Name == "" {
		return recordFromFields("", t.Fields)
	}
	if p, ok := primitiveAliases[t.Name]; ok && len(t.Args) == 0 {
		return p
	}
	switch t.Name {
	case "List":
		l := &List{}
		if len(t.Args) > 0 {
			l.Elem = FromTypeExpr(t.Args[0])
		}
		return l
	case "Map":
		m := &Map{}
		switch len(t.Args) {
		case 1:
			m.Value = FromTypeExpr(t.Args[0])
		case 2:
			m.Value = FromTypeExpr(t.Args[1])
		}
		return m
	}
	return Ref{Name: t.Name}
}

// FromTypeDef converts a `type` declaration.
func FromTypeDef(td *ast.TypeDef) Type {
	if td.IsEnum() {
		return &Enum{Name: td.Name, Variants: append([]string(nil), td.Variants...)}
	}
	return recordFromFields(td.Name, td.Fields)
}

func recordFromFields(name string, fields []ast.Field) *Record {
	r := &Record{Name: name, Fields: make([]Field, len(fields))}
	for i, f := range fields {
		r.Fields[i] = Field{Name: f.Name, Type: FromTypeExpr(f.Type), Optional: f.Optional}
	}
	return r
}

// FromProgram collects every type declared in p.
func FromProgram(p *ast.Program) Types {
	types := make(Types, len(p.Types))
	for _, td := range p.Types {
		types[td.Name] = FromTypeDef(td)
	}
	return types
}
