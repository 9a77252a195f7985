package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	RuntimeOptions
	Args string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <program.cg> <flow> [name=value...]",
		Short: "Call one flow and print its return value",
		Long: `Call a single flow of a program and print its return value.

Arguments are bound by parameter name. Values that parse as JSON keep their
type; anything else is passed as a string. --args supplies a JSON object
instead and is overridden by name=value pairs.

Example:
  cognos invoke tools.cg classify text="the build is red" --script replay.yaml
  cognos invoke tools.cg add a=1 b=2 --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeFlow(opts, args[0], args[1], args[2:], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Args, "args", "", "flow arguments as a JSON object")

	return cmd
}

func invokeFlow(opts *InvokeOptions, path, flow string, pairs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	if prog.AST.Flow(flow) == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("flow %q not found in %s", flow, path))
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	named, err := parseKeyValues(pairs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	for name, v := range named.All() {
		args = args.With(name, v)
	}

	// Program output goes to stderr so stdout carries only the result.
	sess, err := openSession(&opts.RuntimeOptions, logger, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	result, runErr := sess.execute(ctx, prog, flow, args)
	if runErr != nil {
		return reportProgramError(formatter, sess.RunID(), runErr)
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", RunID: sess.RunID(), Data: ir.ToGo(result)})
	}
	return writeValue(cmd.OutOrStdout(), result)
}

// writeValue prints v as JSON when it has a JSON form, else its repr.
func writeValue(w io.Writer, v ir.Value) error {
	data, err := ir.MarshalJSON(v)
	if err != nil {
		_, err = fmt.Fprintln(w, ir.Repr(v))
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
