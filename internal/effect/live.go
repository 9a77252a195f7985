package effect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// settings collects the options shared by Live and Scripted.
type settings struct {
	tracer     *trace.Tracer
	stdin      io.Reader
	stdout     io.Writer
	generator  Generator
	httpClient *http.Client
	allowShell *bool
	workDir    string
}

// Option configures a boundary.
type Option func(*settings)

// WithTracer records one event per effect on tr.
func WithTracer(tr *trace.Tracer) Option {
	return func(s *settings) { s.tracer = tr }
}

// WithStdin sets the line source for Live.
func WithStdin(r io.Reader) Option {
	return func(s *settings) { s.stdin = r }
}

// WithStdout sets where output goes. Scripted echoes captured output to it.
func WithStdout(w io.Writer) Option {
	return func(s *settings) { s.stdout = w }
}

// WithGenerator sets the model client used by Live.
func WithGenerator(g Generator) Option {
	return func(s *settings) { s.generator = g }
}

// WithHTTPClient sets the client used by Live for http_get and http_post.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithShell overrides the shell policy. For Scripted this takes precedence
// over the script's allow_shell.
func WithShell(allow bool) Option {
	return func(s *settings) { s.allowShell = &allow }
}

// WithWorkDir sets the directory shell commands run in.
func WithWorkDir(dir string) Option {
	return func(s *settings) { s.workDir = dir }
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Live performs effects against real resources.
type Live struct {
	inMu   sync.Mutex
	in     *bufio.Reader
	prompt bool

	outMu sync.Mutex
	out   io.Writer

	gen        Generator
	client     *http.Client
	allowShell bool
	workDir    string
	tracer     *trace.Tracer
}

// NewLive creates a live boundary. Defaults: os.Stdin, os.Stdout, shell
// allowed, http.DefaultClient and no generator (generation fails until one
// is configured).
func NewLive(opts ...Option) *Live {
	s := newSettings(opts)
	l := &Live{
		gen:        s.generator,
		client:     s.httpClient,
		allowShell: true,
		workDir:    s.workDir,
		tracer:     s.tracer,
		out:        s.stdout,
	}
	if s.allowShell != nil {
		l.allowShell = *s.allowShell
	}
	if l.client == nil {
		l.client = http.DefaultClient
	}
	if l.out == nil {
		l.out = os.Stdout
	}

	in := s.stdin
	if in == nil {
		in = os.Stdin
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		l.prompt = true
	}
	l.in = bufio.NewReader(in)
	return l
}

// AllowShell implements Boundary.
func (l *Live) AllowShell() bool { return l.allowShell }

// Perform implements Boundary. A call that has started is not interrupted
// when ctx is cancelled; ctx only carries values into the effect.
func (l *Live) Perform(ctx context.Context, op Op) (ir.Value, error) {
	start := time.Now()
	o := l.perform(context.WithoutCancel(ctx), op)
	o.latency = time.Since(start)
	record(l.tracer, op, o)
	return o.result, o.err
}

func (l *Live) perform(ctx context.Context, op Op) outcome {
	switch op.Kind {
	case OpReadLine:
		return l.readLine()
	case OpWriteOutput:
		l.outMu.Lock()
		_, err := fmt.Fprintln(l.out, op.Text)
		l.outMu.Unlock()
		return outcome{result: ir.None{}, err: err}
	case OpReadFile:
		data, err := os.ReadFile(op.Path)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{result: ir.String(data)}
	case OpWriteFile:
		if err := os.WriteFile(op.Path, []byte(op.Text), 0o644); err != nil {
			return outcome{err: err}
		}
		return outcome{result: ir.None{}}
	case OpShell:
		return l.shell(ctx, op.Text)
	case OpGenerate:
		return l.generate(ctx, op)
	case OpHTTPGet, OpHTTPPost:
		return l.http(ctx, op)
	}
	return outcome{err: fmt.Errorf("unknown effect %q", op.Kind)}
}

func (l *Live) readLine() outcome {
	l.inMu.Lock()
	defer l.inMu.Unlock()

	if l.prompt {
		l.outMu.Lock()
		fmt.Fprint(l.out, "> ")
		l.outMu.Unlock()
	}
	line, err := l.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line == "" {
		return outcome{result: ir.None{}}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return outcome{err: fmt.Errorf("read stdin: %w", err)}
	}
	return outcome{result: ir.String(strings.TrimRight(line, "\r\n"))}
}

func (l *Live) shell(ctx context.Context, command string) outcome {
	if !l.allowShell {
		return outcome{err: &DeniedError{Command: command}, exitCode: -1}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = l.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return outcome{err: fmt.Errorf("shell: %w", err), exitCode: -1}
		}
		exitCode = exitErr.ExitCode()
	}

	out := stdout.String()
	if stderr.Len() > 0 {
		out += stderr.String()
	}
	return outcome{result: ir.String(out), exitCode: exitCode}
}

func (l *Live) generate(ctx context.Context, op Op) outcome {
	if l.gen == nil {
		return outcome{err: errors.New("no model provider configured")}
	}
	req := *op.Request
	if req.Model == "" {
		req.Model = l.gen.DefaultModel()
	}
	resp, err := l.gen.Generate(ctx, req)
	o := outcome{model: req.Model, provider: l.gen.Provider(), resp: resp, err: err}
	if err == nil {
		o.result = resp.Value()
	}
	return o
}

func (l *Live) http(ctx context.Context, op Op) outcome {
	method, body := http.MethodGet, io.Reader(nil)
	if op.Kind == OpHTTPPost {
		method, body = http.MethodPost, strings.NewReader(op.Text)
	}
	req, err := http.NewRequestWithContext(ctx, method, op.Path, body)
	if err != nil {
		return outcome{err: fmt.Errorf("http %s: %w", strings.ToLower(method), err)}
	}
	if op.Kind == OpHTTPPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return outcome{err: fmt.Errorf("http %s: %w", strings.ToLower(method), err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{err: fmt.Errorf("read response: %w", err), status: resp.StatusCode}
	}
	return outcome{result: ir.String(data), status: resp.StatusCode}
}
