package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/cognos/internal/ast"
)

const tabWidth = 4

// lexer turns source text into tokens, synthesizing Indent and Dedent
// tokens from leading whitespace. Newlines inside brackets are ignored.
type lexer struct {
	src     []rune
	pos     int
	line    int
	col     int
	tokens  []Token
	indents []int
	depth   int // bracket nesting
}

// Lex tokenizes src.
func Lex(src string) ([]Token, error) {
	l := &lexer{src: []rune(src), line: 1, col: 1, indents: []int{0}}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	atLineStart := true
	for {
		if atLineStart && l.depth == 0 {
			blank, err := l.lineStart()
			if err != nil {
				return err
			}
			if blank {
				if l.eof() {
					break
				}
				continue
			}
			atLineStart = false
		}
		if l.eof() {
			break
		}

		c := l.peek()
		switch {
		case c == '\n':
			l.advance()
			if l.depth == 0 {
				l.newline()
				atLineStart = true
			}
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '#':
			l.skipComment()
		case c == '\\' && l.peekAt(1) == '\n':
			l.advance()
			l.advance()
		case isDigit(c):
			l.number()
		case c == 'f' && (l.peekAt(1) == '"' || l.peekAt(1) == '\''):
			start := l.at()
			l.advance()
			raw, err := l.stringBody(true)
			if err != nil {
				return err
			}
			l.emit(FString, raw, start)
		case isIdentStart(c):
			l.ident()
		case c == '"' || c == '\'':
			start := l.at()
			s, err := l.stringBody(false)
			if err != nil {
				return err
			}
			l.emit(String, s, start)
		default:
			if err := l.punct(); err != nil {
				return err
			}
		}
	}

	l.newline()
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(Dedent, "", l.at())
	}
	l.emit(EOF, "", l.at())
	return nil
}

// lineStart measures indentation at the start of a logical line and emits
// Indent/Dedent tokens. Reports blank=true for empty and comment-only
// lines, which do not affect indentation.
func (l *lexer) lineStart() (blank bool, err error) {
	width := 0
	for !l.eof() {
		c := l.peek()
		if c == ' ' {
			width++
		} else if c == '\t' {
			width += tabWidth
		} else if c != '\r' {
			break
		}
		l.advance()
	}
	if l.eof() {
		return true, nil
	}
	switch l.peek() {
	case '\n':
		l.advance()
		return true, nil
	case '#':
		l.skipComment()
		if !l.eof() {
			l.advance() // newline
		}
		return true, nil
	}

	top := l.indents[len(l.indents)-1]
	switch {
	case width > top:
		l.indents = append(l.indents, width)
		l.emit(Indent, "", l.at())
	case width < top:
		for width < l.indents[len(l.indents)-1] {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(Dedent, "", l.at())
		}
		if width != l.indents[len(l.indents)-1] {
			return false, &Error{Pos: l.at(), Msg: "inconsistent indentation"}
		}
	}
	return false, nil
}

func (l *lexer) newline() {
	if n := len(l.tokens); n > 0 && l.tokens[n-1].Kind != Newline && l.tokens[n-1].Kind != Indent && l.tokens[n-1].Kind != Dedent {
		l.emit(Newline, "", l.at())
	}
}

func (l *lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *lexer) number() {
	start := l.at()
	var b strings.Builder
	for !l.eof() && (isDigit(l.peek()) || l.peek() == '_') {
		if r := l.advance(); r != '_' {
			b.WriteRune(r)
		}
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		b.WriteRune(l.advance())
		for !l.eof() && isDigit(l.peek()) {
			b.WriteRune(l.advance())
		}
		l.emit(Float, b.String(), start)
		return
	}
	l.emit(Int, b.String(), start)
}

func (l *lexer) ident() {
	start := l.at()
	var b strings.Builder
	for !l.eof() && isIdentPart(l.peek()) {
		b.WriteRune(l.advance())
	}
	word := b.String()
	if kw, ok := keywords[word]; ok {
		l.emit(kw, word, start)
		return
	}
	l.emit(Ident, word, start)
}

// stringBody scans a quoted string starting at the opening quote. Triple
// quotes may span lines. With raw=true the content is returned without
// escape processing (f-strings are decoded by the parser).
func (l *lexer) stringBody(raw bool) (string, error) {
	start := l.at()
	quote := l.advance()
	triple := l.peek() == quote && l.peekAt(1) == quote
	if triple {
		l.advance()
		l.advance()
	}

	var b strings.Builder
	for {
		if l.eof() {
			return "", &Error{Pos: start, Msg: "unterminated string"}
		}
		c := l.peek()
		if c == quote {
			if !triple {
				l.advance()
				break
			}
			if l.peekAt(1) == quote && l.peekAt(2) == quote {
				l.advance()
				l.advance()
				l.advance()
				break
			}
		}
		if c == '\n' && !triple {
			return "", &Error{Pos: start, Msg: "unterminated string"}
		}
		if c == '\\' {
			l.advance()
			if l.eof() {
				return "", &Error{Pos: start, Msg: "unterminated string"}
			}
			esc := l.advance()
			if raw {
				b.WriteRune('\\')
				b.WriteRune(esc)
				continue
			}
			decoded, err := unescapeRune(esc, l)
			if err != nil {
				return "", &Error{Pos: l.at(), Msg: err.Error()}
			}
			b.WriteString(decoded)
			continue
		}
		b.WriteRune(l.advance())
	}
	return b.String(), nil
}

// unescapeRune decodes the escape sequence whose introducing character
// (after the backslash) is esc. \u and \x read their hex digits from l.
func unescapeRune(esc rune, l *lexer) (string, error) {
	switch esc {
	case 'u', 'x':
		n := 4
		if esc == 'x' {
			n = 2
		}
		var hex strings.Builder
		for i := 0; i < n && !l.eof(); i++ {
			hex.WriteRune(l.advance())
		}
		return decodeEscape(`\` + string(esc) + hex.String())
	case '{', '}':
		return string(esc), nil
	case '\'':
		return "'", nil
	default:
		return decodeEscape(`\` + string(esc))
	}
}

// decodeEscape decodes a single Go-style escape sequence.
func decodeEscape(seq string) (string, error) {
	r, _, tail, err := strconv.UnquoteChar(seq, '"')
	if err != nil || tail != "" {
		return "", fmt.Errorf("invalid escape sequence %q", seq)
	}
	return string(r), nil
}

// Unescape decodes backslash escapes in s. Used for f-string literal text.
func Unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' || len(s) == 1 {
			r, size := utf8.DecodeRuneInString(s)
			b.WriteRune(r)
			s = s[size:]
			continue
		}
		switch s[1] {
		case '{', '}', '\'':
			b.WriteByte(s[1])
			s = s[2:]
			continue
		}
		r, _, tail, err := strconv.UnquoteChar(s, '"')
		if err != nil {
			return "", fmt.Errorf("invalid escape sequence in %q", s)
		}
		b.WriteRune(r)
		s = tail
	}
	return b.String(), nil
}

func (l *lexer) punct() error {
	start := l.at()
	c := l.advance()
	two := func(next rune, yes, no Kind) {
		if l.peek() == next {
			l.advance()
			l.emit(yes, "", start)
			return
		}
		l.emit(no, "", start)
	}

	switch c {
	case '(':
		l.depth++
		l.emit(LParen, "", start)
	case ')':
		l.closeBracket()
		l.emit(RParen, "", start)
	case '[':
		l.depth++
		l.emit(LBracket, "", start)
	case ']':
		l.closeBracket()
		l.emit(RBracket, "", start)
	case '{':
		l.depth++
		l.emit(LBrace, "", start)
	case '}':
		l.closeBracket()
		l.emit(RBrace, "", start)
	case ',':
		l.emit(Comma, "", start)
	case ':':
		l.emit(Colon, "", start)
	case '.':
		l.emit(Dot, "", start)
	case '?':
		l.emit(Question, "", start)
	case '|':
		l.emit(Pipe, "", start)
	case '+':
		l.emit(Plus, "", start)
	case '-':
		two('>', Arrow, Minus)
	case '*':
		l.emit(Star, "", start)
	case '/':
		l.emit(Slash, "", start)
	case '%':
		l.emit(Percent, "", start)
	case '=':
		two('=', Eq, Assign)
	case '<':
		two('=', Le, Lt)
	case '>':
		two('=', Ge, Gt)
	case '!':
		if l.peek() != '=' {
			return &Error{Pos: start, Msg: "unexpected character '!'"}
		}
		l.advance()
		l.emit(Ne, "", start)
	default:
		return &Error{Pos: start, Msg: "unexpected character " + strconv.QuoteRune(c)}
	}
	return nil
}

func (l *lexer) closeBracket() {
	if l.depth > 0 {
		l.depth--
	}
}

func (l *lexer) emit(k Kind, text string, pos ast.Pos) {
	l.tokens = append(l.tokens, Token{Kind: k, Text: text, Pos: pos})
}

func (l *lexer) at() ast.Pos { return ast.Pos{Line: l.line, Col: l.col} }

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

func (l *lexer) peek() rune { return l.peekAt(0) }

func (l *lexer) peekAt(n int) rune {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }
