package ast

// Stmt is a sealed interface over statement nodes.
type Stmt interface {
	stmtNode()
	Position() Pos
}

// Expr is a sealed interface over expression nodes.
type Expr interface {
	exprNode()
	Position() Pos
}

type (
	// Assign binds Value to Name.
	Assign struct {
		Name  string
		Value Expr
		At    Pos
	}

	// Return exits the enclosing flow. Value is nil for a bare return.
	Return struct {
		Value Expr
		At    Pos
	}

	Break struct{ At Pos }

	Continue struct{ At Pos }

	Pass struct{ At Pos }

	// If holds the if branch, any elif branches and an optional else.
	If struct {
		Cond  Expr
		Body  []Stmt
		Elifs []ElifClause
		Else  []Stmt
		At    Pos
	}

	ElifClause struct {
		Cond Expr
		Body []Stmt
	}

	// Loop repeats Body until break or return. Max is nil when the default
	// iteration limit applies.
	Loop struct {
		Max  Expr
		Body []Stmt
		At   Pos
	}

	// For iterates Iter. With ValueVar set, maps yield key/value pairs and
	// lists yield index/element pairs.
	For struct {
		Var      string
		ValueVar string
		Iter     Expr
		Body     []Stmt
		At    Pos
	}

	// TryCatch runs Body; an error binds its message to ErrVar (if set) and
	// runs Catch.
	TryCatch struct {
		Body   []Stmt
		ErrVar string
		Catch  []Stmt
		At     Pos
	}

	// Parallel runs every branch concurrently and joins.
	Parallel struct {
		Branches [][]Stmt
		At    Pos
	}

	// Select races its branches; the first to finish wins.
	Select struct {
		Branches [][]Stmt
		At    Pos
	}

	// ExprStmt evaluates X for its effects.
	ExprStmt struct {
		X  Expr
		At Pos
	}
)

func (*Assign) stmtNode()   {}
func (*Return) stmtNode()   {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Pass) stmtNode()     {}
func (*If) stmtNode()       {}
func (*Loop) stmtNode()     {}
func (*For) stmtNode()      {}
func (*TryCatch) stmtNode() {}
func (*Parallel) stmtNode() {}
func (*Select) stmtNode()   {}
func (*ExprStmt) stmtNode() {}

func (s *Assign) Position() Pos   { return s.At }
func (s *Return) Position() Pos   { return s.At }
func (s *Break) Position() Pos    { return s.At }
func (s *Continue) Position() Pos { return s.At }
func (s *Pass) Position() Pos     { return s.At }
func (s *If) Position() Pos       { return s.At }
func (s *Loop) Position() Pos     { return s.At }
func (s *For) Position() Pos      { return s.At }
func (s *TryCatch) Position() Pos { return s.At }
func (s *Parallel) Position() Pos { return s.At }
func (s *Select) Position() Pos   { return s.At }
func (s *ExprStmt) Position() Pos { return s.At }

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpGt  BinaryOp = ">"
	OpLe  BinaryOp = "<="
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "and"
	OpOr  BinaryOp = "or"
)

type (
	Ident struct {
		Name string
		At   Pos
	}

	StringLit struct {
		Value string
		At    Pos
	}

	IntLit struct {
		Value int64
		At    Pos
	}

	FloatLit struct {
		Value float64
		At    Pos
	}

	BoolLit struct {
		Value bool
		At    Pos
	}

	NoneLit struct{ At Pos }

	// FString interpolates Parts in order.
	FString struct {
		Parts []FStringPart
		At    Pos
	}

	// FStringPart is literal text when Expr is nil.
	FStringPart struct {
		Text string
		Expr Expr
	}

	ListLit struct {
		Elems []Expr
		At    Pos
	}

	MapLit struct {
		Entries []MapEntry
		At      Pos
	}

	MapEntry struct {
		Key   string
		Value Expr
	}

	// Call invokes a builtin or flow by name.
	Call struct {
		Name   string
		Args   []Expr
		Kwargs []Kwarg
		At     Pos
	}

	Kwarg struct {
		Name  string
		Value Expr
	}

	MethodCall struct {
		Recv   Expr
		Method string
		Args   []Expr
		Kwargs []Kwarg
		At     Pos
	}

	FieldAccess struct {
		X    Expr
		Name string
		At   Pos
	}

	Index struct {
		X     Expr
		Index Expr
		At    Pos
	}

	// Slice is X[Lo:Hi]; either bound may be nil.
	Slice struct {
		X  Expr
		Lo Expr
		Hi Expr
		At Pos
	}

	Binary struct {
		Op    BinaryOp
		Left  Expr
		Right Expr
		At    Pos
	}

	Not struct {
		X  Expr
		At Pos
	}

	Neg struct {
		X  Expr
		At Pos
	}

	// Async evaluates X on a background task and yields a Future.
	Async struct {
		X  Expr
		At Pos
	}
)

func (*Ident) exprNode()       {}
func (*StringLit) exprNode()   {}
func (*IntLit) exprNode()      {}
func (*FloatLit) exprNode()    {}
func (*BoolLit) exprNode()     {}
func (*NoneLit) exprNode()     {}
func (*FString) exprNode()     {}
func (*ListLit) exprNode()     {}
func (*MapLit) exprNode()      {}
func (*Call) exprNode()        {}
func (*MethodCall) exprNode()  {}
func (*FieldAccess) exprNode() {}
func (*Index) exprNode()       {}
func (*Slice) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Not) exprNode()         {}
func (*Neg) exprNode()         {}
func (*Async) exprNode()       {}

func (e *Ident) Position() Pos       { return e.At }
func (e *StringLit) Position() Pos   { return e.At }
func (e *IntLit) Position() Pos      { return e.At }
func (e *FloatLit) Position() Pos    { return e.At }
func (e *BoolLit) Position() Pos     { return e.At }
func (e *NoneLit) Position() Pos     { return e.At }
func (e *FString) Position() Pos     { return e.At }
func (e *ListLit) Position() Pos     { return e.At }
func (e *MapLit) Position() Pos      { return e.At }
func (e *Call) Position() Pos        { return e.At }
func (e *MethodCall) Position() Pos  { return e.At }
func (e *FieldAccess) Position() Pos { return e.At }
func (e *Index) Position() Pos       { return e.At }
func (e *Slice) Position() Pos       { return e.At }
func (e *Binary) Position() Pos      { return e.At }
func (e *Not) Position() Pos         { return e.At }
func (e *Neg) Position() Pos         { return e.At }
func (e *Async) Position() Pos       { return e.At }
