package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/parser"
	"github.com/roach88/cognos/internal/store"
)

const (
	replPrompt       = ">>> "
	replContinuation = "... "
)

// ReplOptions holds flags for the repl command.
type ReplOptions struct {
	*RootOptions
	RuntimeOptions
}

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Read, evaluate and print statements interactively.

A line ending in ":" opens a block; keep typing indented lines and finish
it with a blank line. Variables and flows persist between inputs. Errors are
printed and the session continues.

Commands:
  :flows   list defined flows
  :vars    list variables
  :quit    leave (also Ctrl-D)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func runRepl(opts *ReplOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	// input() and the prompt share one buffered reader so neither loses
	// the other's lines.
	in := bufio.NewReader(cmd.InOrStdin())
	sess, err := openSession(&opts.RuntimeOptions, logger, in, out)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if sess.store != nil {
		if err := sess.store.BeginRun(base, store.Run{ID: sess.RunID(), Program: "<repl>"}); err != nil {
			logger.Warn("failed to record run start", "run", sess.RunID(), "error", err)
		}
		defer func() {
			err := sess.store.FinishRun(context.WithoutCancel(base), sess.RunID(), store.Outcome{Status: store.StatusSucceeded})
			if err != nil {
				logger.Warn("failed to record run outcome", "run", sess.RunID(), "error", err)
			}
		}()
	}

	r := &repl{
		interp: sess.interpreter(),
		scope:  engine.NewScope(),
		in:     in,
		out:    out,
		errOut: cmd.ErrOrStderr(),
		paint:  newPainter(out),
	}
	return r.loop(func() (context.Context, context.CancelFunc) {
		return signalContext(base, logger)
	})
}

type repl struct {
	interp *engine.Interpreter
	scope  *engine.Scope
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	paint  painter
}

// loop reads inputs until EOF or :quit. newContext supplies the context
// each evaluation runs under.
func (r *repl) loop(newContext func() (context.Context, context.CancelFunc)) error {
	for {
		src, ok := r.readInput()
		if !ok {
			fmt.Fprintln(r.out)
			return nil
		}
		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit", ":exit":
			return nil
		case ":flows":
			for _, name := range r.interp.Registry().FlowNames() {
				fmt.Fprintln(r.out, name)
			}
			continue
		case ":vars":
			for _, name := range r.scope.Names() {
				v, _ := r.scope.Lookup(name)
				fmt.Fprintf(r.out, "%s = %s\n", name, ir.Repr(v))
			}
			continue
		}

		ctx, stop := newContext()
		r.eval(ctx, src)
		stop()
	}
}

// readInput reads one input: a single line, or a block opened by a line
// ending in ':' and closed by a blank line. ok is false at end of input
// with nothing read.
func (r *repl) readInput() (src string, ok bool) {
	fmt.Fprint(r.out, r.paint.prompt(replPrompt))
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	src = line
	if !opensBlock(line) {
		return src, true
	}
	for err == nil {
		fmt.Fprint(r.out, r.paint.prompt(replContinuation))
		line, err = r.in.ReadString('\n')
		if strings.TrimSpace(line) == "" {
			break
		}
		src += line
	}
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	return src, true
}

func opensBlock(line string) bool {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return strings.HasSuffix(strings.TrimSpace(line), ":")
}

// eval parses src, registers any flows and types it defines and runs its
// statements in the session scope.
func (r *repl) eval(ctx context.Context, src string) {
	prog, err := parser.Parse(src)
	if err != nil {
		var perr *parser.Error
		if errors.As(err, &perr) {
			fmt.Fprintln(r.errOut, r.paint.failure("SyntaxError: "+perr.Msg))
			return
		}
		fmt.Fprintln(r.errOut, r.paint.failure("SyntaxError: "+err.Error()))
		return
	}
	r.interp.Load(prog)
	if len(prog.Stmts) == 0 {
		return
	}

	v, err := r.interp.Exec(ctx, r.scope, prog.Stmts)
	if err != nil {
		fmt.Fprintln(r.errOut, r.paint.failure(fmt.Sprintf("%s: %s", engine.Classify(err), engine.Message(err))))
		return
	}
	if v != nil && v.Kind() != ir.KindNone {
		fmt.Fprintln(r.out, ir.Repr(v))
	}
}

// painter colours prompts and errors when writing to a terminal.
type painter struct {
	profile termenv.Profile
	enabled bool
}

func newPainter(w io.Writer) painter {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return painter{}
	}
	return painter{profile: termenv.ColorProfile(), enabled: true}
}

func (p painter) prompt(s string) string { return p.color(s, "#818cf8") }

func (p painter) failure(s string) string { return p.color(s, "#fb7185") }

func (p painter) color(s, hex string) string {
	if !p.enabled {
		return s
	}
	return termenv.String(s).Foreground(p.profile.Color(hex)).String()
}
