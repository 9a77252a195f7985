// Package ast defines the parsed form of a Cognos program.
//
// The parser produces these nodes and the engine walks them. Nodes are
// treated as immutable once parsed: the same *FlowDef may be executed by
// many goroutines at once.
package ast

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

// Program is a parsed source unit.
type Program struct {
	Imports []string
	Types   []*TypeDef
	Flows   []*FlowDef

	// Stmts holds top-level statements outside any flow. Used by eval and
	// the REPL.
	Stmts []Stmt
}

// Flow returns the flow named name, or nil.
func (p *Program) Flow(name string) *FlowDef {
	for _, f := range p.Flows {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FlowDef is a named, parameterized unit of program logic.
type FlowDef struct {
	Name    string
	Params  []Param
	Returns *TypeExpr // nil if undeclared
	Body    []Stmt
	Pos     Pos
}

// Param is a flow parameter. Default is nil for required parameters.
type Param struct {
	Name    string
	Type    *TypeExpr
	Default Expr
}

// TypeDef declares a named record or enum type.
// Exactly one of Fields or Variants is populated.
type TypeDef struct {
	Name     string
	Fields   []Field
	Variants []string
	Pos      Pos
}

// IsEnum reports whether the type is a closed set of string literals.
func (t *TypeDef) IsEnum() bool { return len(t.Variants) > 0 }

// Field is a record field. Optional fields are written `name?: Type`.
type Field struct {
	Name     string
	Type     *TypeExpr
	Optional bool
}

// TypeExpr references a type: a name (`Text`, `Insight`), a generic
// (`List[Insight]`, `Map[Text, Int]`) or an inline record.
type TypeExpr struct {
	Name   string
	Args   []*TypeExpr
	Fields []Field // inline record when Name == ""
}
