package cli

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/engine"
)

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <program.cg>",
		Short: "Parse a program and print it",
		Long: `Parse a program and print the result.

Text output is the program re-printed in canonical layout. JSON output is
the syntax tree; every statement and expression node carries its node type.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runParse(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if formatter.JSON() {
		return formatter.Success(astJSON(reflect.ValueOf(prog.AST)))
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), ast.Format(prog.AST))
	return err
}

// astJSON converts a syntax tree into JSON-ready maps. Interface-typed
// fields lose their concrete type under encoding/json, so every node
// behind an interface gets a "node" key naming it.
func astJSON(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		elem := v.Elem()
		out := astJSON(elem)
		if m, ok := out.(map[string]any); ok {
			m["node"] = reflect.Indirect(elem).Type().Name()
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return astJSON(v.Elem())
	case reflect.Struct:
		m := make(map[string]any, v.NumField())
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			fv := v.Field(i)
			if fv.IsZero() {
				continue
			}
			m[snake(f.Name)] = astJSON(fv)
		}
		return m
	case reflect.Slice:
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = astJSON(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CheckResult summarises a program's declarations.
type CheckResult struct {
	Program string      `json:"program"`
	Imports []string    `json:"imports,omitempty"`
	Types   []TypeInfo  `json:"types"`
	Flows   []FlowInfo  `json:"flows"`
	Stmts   int         `json:"top_level_statements"`
	Unknown []CallError `json:"unknown_calls,omitempty"`
}

// TypeInfo describes a declared type.
type TypeInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "record" or "enum"
	Line int    `json:"line"`
}

// FlowInfo describes a declared flow.
type FlowInfo struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Line      int    `json:"line"`
}

// CallError is a call to a name that is neither a flow nor a builtin.
type CallError struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <program.cg>",
		Short: "List a program's flows and types",
		Long: `Parse a program and report its flows and types.

Calls to names that are neither flows nor builtins are listed; they fail
at runtime with NotFoundError unless eval defines them first.

Exit codes:
  0 - Program parses and every call resolves
  1 - Unknown calls found
  2 - Command error (unreadable program, parse error)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	result := checkProgram(prog)

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s: %d flow(s), %d type(s)\n", path, len(result.Flows), len(result.Types))
		for _, t := range result.Types {
			fmt.Fprintf(w, "  type %s (%s, line %d)\n", t.Name, t.Kind, t.Line)
		}
		for _, f := range result.Flows {
			fmt.Fprintf(w, "  flow %s (line %d)\n", f.Signature, f.Line)
		}
		for _, c := range result.Unknown {
			fmt.Fprintf(w, "  ✗ unknown call %s (line %d)\n", c.Name, c.Line)
		}
	}

	if len(result.Unknown) > 0 {
		return reportedError(ExitFailure, fmt.Sprintf("%d unknown call(s)", len(result.Unknown)))
	}
	return nil
}

func checkProgram(prog *Program) CheckResult {
	p := prog.AST
	result := CheckResult{
		Program: prog.Path,
		Imports: p.Imports,
		Types:   []TypeInfo{},
		Flows:   []FlowInfo{},
		Stmts:   len(p.Stmts),
	}
	for _, td := range p.Types {
		kind := "record"
		if td.IsEnum() {
			kind = "enum"
		}
		result.Types = append(result.Types, TypeInfo{Name: td.Name, Kind: kind, Line: td.Pos.Line})
	}

	known := map[string]bool{}
	for _, name := range engine.BuiltinNames() {
		known[name] = true
	}
	for _, name := range p.Imports {
		known[name] = true
	}
	for _, f := range p.Flows {
		known[f.Name] = true
		result.Flows = append(result.Flows, FlowInfo{Name: f.Name, Signature: flowSignature(f), Line: f.Pos.Line})
	}

	seen := map[string]bool{}
	collect := func(body []ast.Stmt) {
		ast.Inspect(body, func(_ ast.Stmt, e ast.Expr) {
			call, ok := e.(*ast.Call)
			if !ok || known[call.Name] || seen[call.Name] {
				return
			}
			seen[call.Name] = true
			result.Unknown = append(result.Unknown, CallError{Name: call.Name, Line: call.Position().Line})
		})
	}
	collect(p.Stmts)
	for _, f := range p.Flows {
		collect(f.Body)
	}
	sort.Slice(result.Unknown, func(i, j int) bool { return result.Unknown[i].Line < result.Unknown[j].Line })
	return result
}

func flowSignature(f *ast.FlowDef) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		s := p.Name
		if p.Type != nil {
			s += ": " + ast.TypeString(p.Type)
		}
		if p.Default != nil {
			s += " = " + ast.FormatExpr(p.Default)
		}
		params[i] = s
	}
	sig := fmt.Sprintf("%s(%s)", f.Name, strings.Join(params, ", "))
	if f.Returns != nil {
		sig += " -> " + ast.TypeString(f.Returns)
	}
	return sig
}

// outputLoadError reports a failed program load and maps it to exit code 2.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message, line := ErrCodeGeneric, err.Error(), 0
	var le *LoadError
	if errors.As(err, &le) {
		code, message, line = le.Code, le.Message, le.Line
	}
	var details any
	if line > 0 {
		details = map[string]int{"line": line}
	}
	_ = formatter.Error(code, message, details)
	return reportedError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
