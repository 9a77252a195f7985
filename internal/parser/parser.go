// Package parser turns Cognos source text into an ast.Program.
//
// The grammar is indentation-based. The lexer synthesizes Indent and
// Dedent tokens; the parser is a plain recursive descent over them.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/cognos/internal/ast"
)

type parser struct {
	toks []Token
	pos  int
}

// Parse parses a complete program.
func Parse(src string) (*ast.Program, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.program()
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (ast.Expr, error) {
	toks, err := Lex(strings.TrimSpace(src))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.accept(Newline)
	if !p.at(EOF) {
		return nil, p.unexpected("end of expression")
	}
	return e, nil
}

func (p *parser) program() (*ast.Program, error) {
	prog := &ast.Program{}
	for {
		p.skipNewlines()
		if p.at(EOF) {
			return prog, nil
		}
		switch p.cur().Kind {
		case KwImport:
			name, err := p.importDecl()
			if err != nil {
				return nil, err
			}
			prog.Imports = append(prog.Imports, name)
		case KwType:
			t, err := p.typeDecl()
			if err != nil {
				return nil, err
			}
			prog.Types = append(prog.Types, t)
		case KwFlow:
			f, err := p.flowDecl()
			if err != nil {
				return nil, err
			}
			if prog.Flow(f.Name) != nil {
				return nil, &Error{Pos: f.Pos, Msg: fmt.Sprintf("flow %q declared twice", f.Name)}
			}
			prog.Flows = append(prog.Flows, f)
		case Indent:
			return nil, p.errorf("unexpected indent")
		default:
			s, err := p.stmt()
			if err != nil {
				return nil, err
			}
			prog.Stmts = append(prog.Stmts, s)
		}
	}
}

func (p *parser) importDecl() (string, error) {
	p.next()
	var name string
	switch p.cur().Kind {
	case String, Ident:
		name = p.next().Text
	default:
		return "", p.unexpected("module name")
	}
	return name, p.endSimple()
}

// typeDecl parses an enum or a record block.
func (p *parser) typeDecl() (*ast.TypeDef, error) {
	start := p.next().Pos
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	td := &ast.TypeDef{Name: name, Pos: start}

	// Enums are written `type Name: "a" | "b"`; `=` is accepted as well.
	if p.at(Assign) || (p.at(Colon) && p.peek(1).Kind == String) {
		p.next()
		for {
			tok, err := p.expect(String)
			if err != nil {
				return nil, err
			}
			td.Variants = append(td.Variants, tok.Text)
			if !p.accept(Pipe) {
				break
			}
		}
		return td, p.endSimple()
	}

	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}
	if _, err := p.expect(Newline); err != nil {
		return nil, err
	}
	if _, err := p.expect(Indent); err != nil {
		return nil, err
	}
	for !p.accept(Dedent) {
		if p.at(EOF) {
			return nil, p.unexpected("field")
		}
		f, err := p.field()
		if err != nil {
			return nil, err
		}
		td.Fields = append(td.Fields, f)
		if err := p.endSimple(); err != nil {
			return nil, err
		}
	}
	if len(td.Fields) == 0 {
		return nil, &Error{Pos: start, Msg: fmt.Sprintf("type %s has no fields", name)}
	}
	return td, nil
}

func (p *parser) field() (ast.Field, error) {
	name, err := p.name()
	if err != nil {
		return ast.Field{}, err
	}
	f := ast.Field{Name: name, Optional: p.accept(Question)}
	if _, err := p.expect(Colon); err != nil {
		return ast.Field{}, err
	}
	f.Type, err = p.typeExpr()
	return f, err
}

func (p *parser) typeExpr() (*ast.TypeExpr, error) {
	if p.accept(LBrace) {
		t := &ast.TypeExpr{}
		for !p.accept(RBrace) {
			f, err := p.field()
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
			if !p.accept(Comma) && !p.at(RBrace) {
				return nil, p.unexpected("',' or '}'")
			}
		}
		return t, nil
	}

	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	t := &ast.TypeExpr{Name: name}
	if p.accept(LBracket) {
		for !p.accept(RBracket) {
			arg, err := p.typeExpr()
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, arg)
			if !p.accept(Comma) && !p.at(RBracket) {
				return nil, p.unexpected("',' or ']'")
			}
		}
	}
	return t, nil
}

// flowDecl parses `flow name(params) -> Type: body`. The parameter list
// may be omitted entirely.
func (p *parser) flowDecl() (*ast.FlowDef, error) {
	start := p.next().Pos
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	f := &ast.FlowDef{Name: name, Pos: start}

	if p.accept(LParen) {
		seen := map[string]bool{}
		for !p.accept(RParen) {
			param, err := p.param()
			if err != nil {
				return nil, err
			}
			if seen[param.Name] {
				return nil, p.errorf("duplicate parameter %q", param.Name)
			}
			seen[param.Name] = true
			f.Params = append(f.Params, param)
			if !p.accept(Comma) && !p.at(RParen) {
				return nil, p.unexpected("',' or ')'")
			}
		}
	}
	if p.accept(Arrow) {
		if f.Returns, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}
	if f.Body, err = p.suite(); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *parser) param() (ast.Param, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ast.Param{}, err
	}
	param := ast.Param{Name: name}
	if p.accept(Colon) {
		if param.Type, err = p.typeExpr(); err != nil {
			return ast.Param{}, err
		}
	}
	if p.accept(Assign) {
		if param.Default, err = p.expr(); err != nil {
			return ast.Param{}, err
		}
	}
	return param, nil
}

// suite parses `:` followed by either an indented block or a single simple
// statement on the same line.
func (p *parser) suite() ([]ast.Stmt, error) {
	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}
	if !p.accept(Newline) {
		s, err := p.simpleStmt()
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{s}, p.endSimple()
	}
	return p.block()
}

func (p *parser) block() ([]ast.Stmt, error) {
	if _, err := p.expect(Indent); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.accept(Dedent) {
		if p.at(EOF) {
			break
		}
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) stmt() (ast.Stmt, error) {
	tok := p.cur()
	switch tok.Kind {
	case KwIf:
		return p.ifStmt()
	case KwLoop:
		return p.loopStmt()
	case KwFor:
		return p.forStmt()
	case KwTry:
		return p.tryStmt()
	case KwParallel, KwSelect:
		return p.concurrentStmt()
	case KwFlow, KwType, KwImport:
		return nil, p.errorf("%s is only allowed at top level", tok.Kind)
	}
	s, err := p.simpleStmt()
	if err != nil {
		return nil, err
	}
	return s, p.endSimple()
}

func (p *parser) simpleStmt() (ast.Stmt, error) {
	tok := p.cur()
	switch tok.Kind {
	case KwReturn:
		p.next()
		r := &ast.Return{At: tok.Pos}
		if p.at(Newline) || p.at(EOF) || p.at(Dedent) {
			return r, nil
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		r.Value = v
		return r, nil
	case KwBreak:
		p.next()
		return &ast.Break{At: tok.Pos}, nil
	case KwContinue:
		p.next()
		return &ast.Continue{At: tok.Pos}, nil
	case KwPass:
		p.next()
		return &ast.Pass{At: tok.Pos}, nil
	case Ident:
		if p.peek(1).Kind == Assign {
			p.next()
			p.next()
			v, err := p.expr()
			if err != nil {
				return nil, err
			}
			return &ast.Assign{Name: tok.Text, Value: v, At: tok.Pos}, nil
		}
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: x, At: tok.Pos}, nil
}

func (p *parser) ifStmt() (ast.Stmt, error) {
	start := p.next().Pos
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	n := &ast.If{Cond: cond, Body: body, At: start}
	for p.accept(KwElif) {
		c, err := p.expr()
		if err != nil {
			return nil, err
		}
		b, err := p.suite()
		if err != nil {
			return nil, err
		}
		n.Elifs = append(n.Elifs, ast.ElifClause{Cond: c, Body: b})
	}
	if p.accept(KwElse) {
		if n.Else, err = p.suite(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *parser) loopStmt() (ast.Stmt, error) {
	start := p.next().Pos
	n := &ast.Loop{At: start}
	if p.at(Ident) && p.cur().Text == "max" {
		p.next()
		if _, err := p.expect(Assign); err != nil {
			return nil, err
		}
		m, err := p.expr()
		if err != nil {
			return nil, err
		}
		n.Max = m
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	n.Body = body
	return n, nil
}

func (p *parser) forStmt() (ast.Stmt, error) {
	start := p.next().Pos
	v, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	n := &ast.For{Var: v, At: start}
	if p.accept(Comma) {
		if n.ValueVar, err = p.expectIdent(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(KwIn); err != nil {
		return nil, err
	}
	if n.Iter, err = p.expr(); err != nil {
		return nil, err
	}
	if n.Body, err = p.suite(); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) tryStmt() (ast.Stmt, error) {
	start := p.next().Pos
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	n := &ast.TryCatch{Body: body, At: start}
	if _, err := p.expect(KwCatch); err != nil {
		return nil, err
	}
	if p.at(Ident) {
		n.ErrVar = p.next().Text
	}
	if n.Catch, err = p.suite(); err != nil {
		return nil, err
	}
	return n, nil
}

// concurrentStmt parses parallel and select. Branches are either explicit
// `branch:` blocks, or every statement of the block is its own branch.
func (p *parser) concurrentStmt() (ast.Stmt, error) {
	tok := p.next()
	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}
	if _, err := p.expect(Newline); err != nil {
		return nil, err
	}
	if _, err := p.expect(Indent); err != nil {
		return nil, err
	}

	var branches [][]ast.Stmt
	explicit := p.at(KwBranch)
	for !p.accept(Dedent) {
		if p.at(EOF) {
			break
		}
		if explicit {
			if _, err := p.expect(KwBranch); err != nil {
				return nil, err
			}
			body, err := p.suite()
			if err != nil {
				return nil, err
			}
			branches = append(branches, body)
			continue
		}
		if p.at(KwBranch) {
			return nil, p.errorf("cannot mix branch blocks with plain statements")
		}
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		branches = append(branches, []ast.Stmt{s})
	}

	if tok.Kind == KwParallel {
		return &ast.Parallel{Branches: branches, At: tok.Pos}, nil
	}
	return &ast.Select{Branches: branches, At: tok.Pos}, nil
}

// Expressions, lowest precedence first.

func (p *parser) expr() (ast.Expr, error) {
	if tok := p.cur(); tok.Kind == KwAsync {
		p.next()
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &ast.Async{X: x, At: tok.Pos}, nil
	}
	return p.orExpr()
}

func (p *parser) orExpr() (ast.Expr, error) {
	return p.binaryLevel(p.andExpr, map[Kind]ast.BinaryOp{KwOr: ast.OpOr})
}

func (p *parser) andExpr() (ast.Expr, error) {
	return p.binaryLevel(p.notExpr, map[Kind]ast.BinaryOp{KwAnd: ast.OpAnd})
}

func (p *parser) notExpr() (ast.Expr, error) {
	if tok := p.cur(); tok.Kind == KwNot {
		p.next()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Not{X: x, At: tok.Pos}, nil
	}
	return p.comparison()
}

var (
	comparisonOps = map[Kind]ast.BinaryOp{
		Eq: ast.OpEq, Ne: ast.OpNe, Lt: ast.OpLt, Gt: ast.OpGt, Le: ast.OpLe, Ge: ast.OpGe,
	}
	additiveOps       = map[Kind]ast.BinaryOp{Plus: ast.OpAdd, Minus: ast.OpSub}
	multiplicativeOps = map[Kind]ast.BinaryOp{Star: ast.OpMul, Slash: ast.OpDiv, Percent: ast.OpMod}
)

func (p *parser) comparison() (ast.Expr, error) {
	return p.binaryLevel(p.additive, comparisonOps)
}

func (p *parser) additive() (ast.Expr, error) {
	return p.binaryLevel(p.multiplicative, additiveOps)
}

func (p *parser) multiplicative() (ast.Expr, error) {
	return p.binaryLevel(p.unary, multiplicativeOps)
}

// binaryLevel parses a left-associative chain of the given operators.
func (p *parser) binaryLevel(operand func() (ast.Expr, error), ops map[Kind]ast.BinaryOp) (ast.Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		op, ok := ops[tok.Kind]
		if !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right, At: tok.Pos}
	}
}

func (p *parser) unary() (ast.Expr, error) {
	if tok := p.cur(); tok.Kind == Minus {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Neg{X: x, At: tok.Pos}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (ast.Expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		switch tok.Kind {
		case Dot:
			p.next()
			name, err := p.name()
			if err != nil {
				return nil, err
			}
			if p.accept(LParen) {
				args, kwargs, err := p.args()
				if err != nil {
					return nil, err
				}
				x = &ast.MethodCall{Recv: x, Method: name, Args: args, Kwargs: kwargs, At: tok.Pos}
				continue
			}
			x = &ast.FieldAccess{X: x, Name: name, At: tok.Pos}
		case LBracket:
			p.next()
			x, err = p.indexOrSlice(x, tok.Pos)
			if err != nil {
				return nil, err
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) indexOrSlice(x ast.Expr, at ast.Pos) (ast.Expr, error) {
	var lo ast.Expr
	if !p.at(Colon) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.accept(RBracket) {
			return &ast.Index{X: x, Index: e, At: at}, nil
		}
		lo = e
	}
	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}
	var hi ast.Expr
	if !p.at(RBracket) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		hi = e
	}
	if _, err := p.expect(RBracket); err != nil {
		return nil, err
	}
	return &ast.Slice{X: x, Lo: lo, Hi: hi, At: at}, nil
}

func (p *parser) primary() (ast.Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case Int:
		p.next()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, &Error{Pos: tok.Pos, Msg: "integer literal out of range"}
		}
		return &ast.IntLit{Value: v, At: tok.Pos}, nil
	case Float:
		p.next()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &Error{Pos: tok.Pos, Msg: "invalid float literal"}
		}
		return &ast.FloatLit{Value: v, At: tok.Pos}, nil
	case String:
		p.next()
		return &ast.StringLit{Value: tok.Text, At: tok.Pos}, nil
	case FString:
		p.next()
		parts, err := splitFString(tok.Text)
		if err != nil {
			return nil, &Error{Pos: tok.Pos, Msg: err.Error()}
		}
		return &ast.FString{Parts: parts, At: tok.Pos}, nil
	case KwTrue, KwFalse:
		p.next()
		return &ast.BoolLit{Value: tok.Kind == KwTrue, At: tok.Pos}, nil
	case KwNone:
		p.next()
		return &ast.NoneLit{At: tok.Pos}, nil
	case Ident:
		p.next()
		if p.accept(LParen) {
			args, kwargs, err := p.args()
			if err != nil {
				return nil, err
			}
			return &ast.Call{Name: tok.Text, Args: args, Kwargs: kwargs, At: tok.Pos}, nil
		}
		return &ast.Ident{Name: tok.Text, At: tok.Pos}, nil
	case LParen:
		p.next()
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return e, nil
	case LBracket:
		p.next()
		l := &ast.ListLit{At: tok.Pos}
		for !p.accept(RBracket) {
			e, err := p.expr()
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, e)
			if !p.accept(Comma) && !p.at(RBracket) {
				return nil, p.unexpected("',' or ']'")
			}
		}
		return l, nil
	case LBrace:
		p.next()
		return p.mapLit(tok.Pos)
	}
	return nil, p.unexpected("expression")
}

// mapLit parses map entries after '{'. Keys are string literals or bare
// identifiers.
func (p *parser) mapLit(at ast.Pos) (ast.Expr, error) {
	m := &ast.MapLit{At: at}
	seen := map[string]bool{}
	for !p.accept(RBrace) {
		var key string
		switch p.cur().Kind {
		case String, Ident:
			key = p.next().Text
		default:
			return nil, p.unexpected("map key")
		}
		if seen[key] {
			return nil, p.errorf("duplicate map key %q", key)
		}
		seen[key] = true
		if _, err := p.expect(Colon); err != nil {
			return nil, err
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, ast.MapEntry{Key: key, Value: v})
		if !p.accept(Comma) && !p.at(RBrace) {
			return nil, p.unexpected("',' or '}'")
		}
	}
	return m, nil
}

// args parses a call argument list after '('. Keyword arguments must
// follow positional ones.
func (p *parser) args() ([]ast.Expr, []ast.Kwarg, error) {
	var args []ast.Expr
	var kwargs []ast.Kwarg
	for !p.accept(RParen) {
		if p.at(Ident) && p.peek(1).Kind == Assign {
			name := p.next().Text
			p.next()
			v, err := p.expr()
			if err != nil {
				return nil, nil, err
			}
			for _, kw := range kwargs {
				if kw.Name == name {
					return nil, nil, p.errorf("duplicate keyword argument %q", name)
				}
			}
			kwargs = append(kwargs, ast.Kwarg{Name: name, Value: v})
		} else {
			if len(kwargs) > 0 {
				return nil, nil, p.errorf("positional argument follows keyword argument")
			}
			v, err := p.expr()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}
		if !p.accept(Comma) && !p.at(RParen) {
			return nil, nil, p.unexpected("',' or ')'")
		}
	}
	return args, kwargs, nil
}

// splitFString splits raw f-string content into literal and interpolated
// parts. `{{` and `}}` denote literal braces.
func splitFString(raw string) ([]ast.FStringPart, error) {
	var parts []ast.FStringPart
	var lit strings.Builder

	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		text, err := Unescape(lit.String())
		if err != nil {
			return err
		}
		parts = append(parts, ast.FStringPart{Text: text})
		lit.Reset()
		return nil
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw):
			lit.WriteByte(c)
			lit.WriteByte(raw[i+1])
			i++
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '}':
			return nil, fmt.Errorf("single '}' in f-string")
		case c == '{':
			end, err := matchBrace(raw, i)
			if err != nil {
				return nil, err
			}
			if err := flush(); err != nil {
				return nil, err
			}
			src := raw[i+1 : end]
			if strings.TrimSpace(src) == "" {
				return nil, fmt.Errorf("empty expression in f-string")
			}
			e, err := ParseExpr(src)
			if err != nil {
				return nil, fmt.Errorf("in f-string expression %q: %w", src, err)
			}
			parts = append(parts, ast.FStringPart{Expr: e})
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return parts, nil
}

// matchBrace returns the index of the '}' closing the '{' at open,
// skipping nested braces and quoted strings.
func matchBrace(s string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated '{' in f-string")
}

// Token helpers.

func (p *parser) cur() Token { return p.peek(0) }

func (p *parser) peek(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	tok := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) at(k Kind) bool { return p.cur().Kind == k }

func (p *parser) accept(k Kind) bool {
	if p.at(k) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k Kind) (Token, error) {
	if !p.at(k) {
		return Token{}, p.unexpected(k.String())
	}
	return p.next(), nil
}

func (p *parser) expectIdent() (string, error) {
	tok, err := p.expect(Ident)
	return tok.Text, err
}

// name accepts an identifier or a keyword used as a field or method name.
func (p *parser) name() (string, error) {
	tok := p.cur()
	if tok.Kind == Ident {
		return p.next().Text, nil
	}
	if kw, ok := keywords[tok.Text]; ok && kw == tok.Kind {
		return p.next().Text, nil
	}
	return "", p.unexpected("name")
}

// endSimple consumes the newline terminating a simple statement.
func (p *parser) endSimple() error {
	if p.accept(Newline) || p.at(EOF) || p.at(Dedent) {
		return nil
	}
	return p.unexpected("newline")
}

func (p *parser) skipNewlines() {
	for p.accept(Newline) {
	}
}

func (p *parser) unexpected(want string) error {
	tok := p.cur()
	got := tok.Kind.String()
	if tok.Kind == Ident {
		got = fmt.Sprintf("identifier %q", tok.Text)
	}
	return &Error{Pos: tok.Pos, Msg: fmt.Sprintf("expected %s, got %s", want, got)}
}

func (p *parser) errorf(format string, args ...any) error {
	return &Error{Pos: p.cur().Pos, Msg: fmt.Sprintf(format, args...)}
}
