package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/compiler"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/parser"
	"github.com/roach88/cognos/internal/schema"
)

// stdinPath names standard input wherever a file path is accepted.
const stdinPath = "-"

// Program is a loaded and parsed program file.
type Program struct {
	Path   string
	Source string
	AST    *ast.Program
	Hash   string // hex SHA-256 of Source
}

// LoadError represents an error that occurred while loading a command input.
type LoadError struct {
	Code    string
	Message string
	Line    int // 1-based source line if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadProgram reads and parses path. "-" reads stdin.
func loadProgram(path string, stdin io.Reader) (*Program, error) {
	var (
		src []byte
		err error
	)
	if path == stdinPath {
		src, err = io.ReadAll(stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		code := ErrCodeReadFailed
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return nil, &LoadError{Code: code, Message: fmt.Sprintf("cannot read program %s", path), Err: err}
	}

	prog, err := parser.Parse(string(src))
	if err != nil {
		le := &LoadError{Code: ErrCodeParseFailed, Message: err.Error(), Err: err}
		var perr *parser.Error
		if errors.As(err, &perr) {
			le.Message = perr.Msg
			le.Line = perr.Pos.Line
		}
		return nil, le
	}

	sum := sha256.Sum256(src)
	return &Program{
		Path:   path,
		Source: string(src),
		AST:    prog,
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}

// loadTypes compiles CUE type definitions. An empty path yields nil.
func loadTypes(path string) (schema.Types, error) {
	if path == "" {
		return nil, nil
	}
	types, err := compiler.CompileFile(path)
	if err != nil {
		code := ErrCodeTypesFailed
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return nil, &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	return types, nil
}

// mergeTypes layers the given type tables; later tables win on name
// clashes.
func mergeTypes(tables ...schema.Types) schema.Types {
	out := schema.Types{}
	for _, t := range tables {
		for name, typ := range t {
			out[name] = typ
		}
	}
	return out
}

// parseArgs decodes the --args flag: a JSON object, or empty for none.
func parseArgs(raw string) (ir.Map, error) {
	if strings.TrimSpace(raw) == "" {
		return ir.NewMap(), nil
	}
	v, err := ir.ParseJSON([]byte(raw))
	if err != nil {
		return ir.Map{}, fmt.Errorf("invalid --args JSON: %w", err)
	}
	m, ok := v.(ir.Map)
	if !ok {
		return ir.Map{}, fmt.Errorf("invalid --args JSON: expected an object, got %s", v.Kind())
	}
	return m, nil
}

// parseKeyValues decodes name=value pairs. Values that parse as JSON keep
// their JSON type; anything else is a string.
func parseKeyValues(pairs []string) (ir.Map, error) {
	out := ir.NewMap()
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return ir.Map{}, fmt.Errorf("invalid argument %q: expected name=value", p)
		}
		v, err := ir.ParseJSON([]byte(raw))
		if err != nil {
			v = ir.String(raw)
		}
		out = out.With(name, v)
	}
	return out, nil
}
