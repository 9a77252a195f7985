package parser

import (
	"fmt"

	"github.com/roach88/cognos/internal/ast"
)

// Kind identifies a token class.
type Kind int

const (
	EOF Kind = iota
	Newline
	Indent
	Dedent

	Ident
	Int
	Float
	String
	FString

	// Keywords
	KwFlow
	KwType
	KwImport
	KwIf
	KwElif
	KwElse
	KwLoop
	KwFor
	KwIn
	KwReturn
	KwBreak
	KwContinue
	KwPass
	KwTry
	KwCatch
	KwParallel
	KwSelect
	KwBranch
	KwAsync
	KwAnd
	KwOr
	KwNot
	KwTrue
	KwFalse
	KwNone

	// Punctuation
	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Comma
	Colon
	Dot
	Arrow
	Assign
	Question
	Pipe
	Plus
	Minus
	Star
	Slash
	Percent
	Eq
	Ne
	Lt
	Gt
	Le
	Ge
)

var keywords = map[string]Kind{
	"flow":     KwFlow,
	"type":     KwType,
	"import":   KwImport,
	"if":       KwIf,
	"elif":     KwElif,
	"else":     KwElse,
	"loop":     KwLoop,
	"for":      KwFor,
	"in":       KwIn,
	"return":   KwReturn,
	"break":    KwBreak,
	"continue": KwContinue,
	"pass":     KwPass,
	"try":      KwTry,
	"catch":    KwCatch,
	"parallel": KwParallel,
	"select":   KwSelect,
	"branch":   KwBranch,
	"async":    KwAsync,
	"and":      KwAnd,
	"or":       KwOr,
	"not":      KwNot,
	"true":     KwTrue,
	"false":    KwFalse,
	"none":     KwNone,
}

var kindNames = map[Kind]string{
	EOF:      "end of input",
	Newline:  "newline",
	Indent:   "indent",
	Dedent:   "dedent",
	Ident:    "identifier",
	Int:      "integer",
	Float:    "float",
	String:   "string",
	FString:  "f-string",
	LParen:   "'('",
	RParen:   "')'",
	LBracket: "'['",
	RBracket: "']'",
	LBrace:   "'{'",
	RBrace:   "'}'",
	Comma:    "','",
	Colon:    "':'",
	Dot:      "'.'",
	Arrow:    "'->'",
	Assign:   "'='",
	Question: "'?'",
	Pipe:     "'|'",
	Plus:     "'+'",
	Minus:    "'-'",
	Star:     "'*'",
	Slash:    "'/'",
	Percent:  "'%'",
	Eq:       "'=='",
	Ne:       "'!='",
	Lt:       "'<'",
	Gt:       "'>'",
	Le:       "'<='",
	Ge:       "'>='",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	for word, kw := range keywords {
		if kw == k {
			return "'" + word + "'"
		}
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexed token. Text holds the identifier name, the literal
// source of a number, or the decoded value of a string. For FString it
// holds the raw content between the quotes.
type Token struct {
	Kind Kind
	Text string
	Pos  ast.Pos
}

// Error is a lex or parse error with its source position.
type Error struct {
	Pos ast.Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
}
