package effect

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// ScriptedProvider is the provider name recorded on generate events.
const ScriptedProvider = "scripted"

// Scripted answers every effect from a Script. It never touches the
// filesystem, network, processes or real stdin.
type Scripted struct {
	mu         sync.Mutex
	script     Script
	files      map[string]string
	allowShell bool
	echo       io.Writer
	tracer     *trace.Tracer

	stdinIdx int
	genIdx   int
	output   []string
	requests []GenerateRequest
	commands []string
}

// NewScripted creates a boundary over s. The script is copied; the
// caller may reuse it for another run.
func NewScripted(s Script, opts ...Option) *Scripted {
	st := newSettings(opts)
	b := &Scripted{
		script:     s,
		files:      maps.Clone(s.Files),
		allowShell: s.ShellAllowed(),
		echo:       st.stdout,
		tracer:     st.tracer,
	}
	if b.files == nil {
		b.files = map[string]string{}
	}
	if st.allowShell != nil {
		b.allowShell = *st.allowShell
	}
	return b
}

// AllowShell implements Boundary.
func (s *Scripted) AllowShell() bool { return s.allowShell }

// Perform implements Boundary.
func (s *Scripted) Perform(_ context.Context, op Op) (ir.Value, error) {
	s.mu.Lock()
	o := s.perform(op)
	s.mu.Unlock()
	record(s.tracer, op, o)
	return o.result, o.err
}

func (s *Scripted) perform(op Op) outcome {
	switch op.Kind {
	case OpReadLine:
		if s.stdinIdx >= len(s.script.Stdin) {
			return outcome{result: ir.None{}}
		}
		line := s.script.Stdin[s.stdinIdx]
		s.stdinIdx++
		return outcome{result: ir.String(line)}

	case OpWriteOutput:
		s.output = append(s.output, op.Text)
		if s.echo != nil {
			fmt.Fprintln(s.echo, op.Text)
		}
		return outcome{result: ir.None{}}

	case OpReadFile:
		content, ok := s.files[op.Path]
		if !ok {
			return outcome{err: &ExhaustedError{Op: op.Kind, Detail: fmt.Sprintf("no file %q", op.Path)}}
		}
		return outcome{result: ir.String(content)}

	case OpWriteFile:
		s.files[op.Path] = op.Text
		return outcome{result: ir.None{}}

	case OpShell:
		s.commands = append(s.commands, op.Text)
		if !s.allowShell {
			return outcome{err: &DeniedError{Command: op.Text}, exitCode: -1}
		}
		if out, ok := s.script.Shell[op.Text]; ok {
			return outcome{result: ir.String(out)}
		}
		base, _, _ := strings.Cut(op.Text, "|")
		if out, ok := s.script.Shell[strings.TrimSpace(base)]; ok {
			return outcome{result: ir.String(out)}
		}
		return outcome{
			err:      &ExhaustedError{Op: op.Kind, Detail: fmt.Sprintf("no response for command %q", op.Text)},
			exitCode: -1,
		}

	case OpGenerate:
		o := outcome{provider: ScriptedProvider}
		if op.Request != nil {
			o.model = op.Request.Model
			s.requests = append(s.requests, *op.Request)
		}
		if s.genIdx >= len(s.script.Generations) {
			o.err = &ExhaustedError{Op: op.Kind, Detail: fmt.Sprintf("no generation left (used %d)", s.genIdx)}
			return o
		}
		o.resp = s.script.Generations[s.genIdx].Response()
		s.genIdx++
		o.result = o.resp.Value()
		return o

	case OpHTTPGet, OpHTTPPost:
		body, ok := s.files[op.Path]
		if !ok {
			return outcome{err: &ExhaustedError{Op: op.Kind, Detail: fmt.Sprintf("no response for %s", op.Path)}}
		}
		return outcome{result: ir.String(body), status: 200}
	}
	return outcome{err: fmt.Errorf("unknown effect %q", op.Kind)}
}

// Output returns the lines written so far.
func (s *Scripted) Output() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.output...)
}

// File returns the content of a scripted or written file.
func (s *Scripted) File(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[path]
	return c, ok
}

// GenerationsUsed returns how many scripted generations were consumed.
func (s *Scripted) GenerationsUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genIdx
}

// Requests returns every generation request received, including those that
// found the script exhausted.
func (s *Scripted) Requests() []GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GenerateRequest(nil), s.requests...)
}

// Commands returns every shell command attempted.
func (s *Scripted) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}
