package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledType is the JSON form of one compiled definition.
type CompiledType struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"` // "record", "enum" or "alias"
	Fields   []CompiledField `json:"fields,omitempty"`
	Variants []string        `json:"variants,omitempty"`
	Type     string          `json:"type,omitempty"` // aliases only
}

// CompiledField is a record field of a compiled definition.
type CompiledField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <types.cue>",
		Short: "Compile CUE definitions to program type declarations",
		Long: `Compile CUE type definitions into Cognos type declarations.

Every top-level definition (#Name) becomes a type. Text output is the
equivalent "type" declarations, ready to paste into a program; JSON output
describes each type. The same file can be passed to run --types directly.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the declarations to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	types, err := loadTypes(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	names := slices.Sorted(func(yield func(string) bool) {
		for name := range types {
			if !yield(name) {
				return
			}
		}
	})
	formatter.VerboseLog("Compiled %d definition(s) from %s", len(names), path)

	decls := declarations(types, names)
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(decls), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return reportedError(ExitCommandError, "failed to write output")
		}
	}

	if formatter.JSON() {
		compiled := make([]CompiledType, 0, len(names))
		for _, name := range names {
			compiled = append(compiled, describeType(name, types[name]))
		}
		return formatter.Success(compiled)
	}

	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %d type(s) to %s\n", len(names), opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, decls)
	return nil
}

func describeType(name string, t schema.Type) CompiledType {
	switch typ := t.(type) {
	case *schema.Record:
		ct := CompiledType{Name: name, Kind: "record", Fields: []CompiledField{}}
		for _, f := range typ.Fields {
			ct.Fields = append(ct.Fields, CompiledField{Name: f.Name, Type: typeString(f.Type), Optional: f.Optional})
		}
		return ct
	case *schema.Enum:
		return CompiledType{Name: name, Kind: "enum", Variants: typ.Variants}
	default:
		return CompiledType{Name: name, Kind: "alias", Type: typeString(t)}
	}
}

// declarations renders types as program source.
func declarations(types schema.Types, names []string) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch typ := types[name].(type) {
		case *schema.Record:
			fmt.Fprintf(&b, "type %s:\n", name)
			for _, f := range typ.Fields {
				opt := ""
				if f.Optional {
					opt = "?"
				}
				fmt.Fprintf(&b, "    %s%s: %s\n", f.Name, opt, typeString(f.Type))
			}
		case *schema.Enum:
			quoted := make([]string, len(typ.Variants))
			for i, v := range typ.Variants {
				quoted[i] = strconv.Quote(v)
			}
			fmt.Fprintf(&b, "type %s: %s\n", name, strings.Join(quoted, " | "))
		default:
			fmt.Fprintf(&b, "# %s = %s (aliases have no declaration form)\n", name, typeString(typ))
		}
	}
	return b.String()
}

func typeString(t schema.Type) string {
	if t == nil {
		return "Any"
	}
	return t.String()
}
