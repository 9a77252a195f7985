// Package effect is the boundary between a program and the outside world.
//
// Every effectful primitive (reading input, writing output, files, shell
// commands, model generation, HTTP) goes through Boundary.Perform. Live talks
// to real resources; Scripted answers from a replay script and never touches
// anything outside the process. The engine cannot tell them apart.
package effect

import (
	"context"
	"fmt"

	"github.com/roach88/cognos/internal/ir"
)

// OpKind identifies an effect operation.
type OpKind string

const (
	OpReadLine    OpKind = "read_line"
	OpWriteOutput OpKind = "write_output"
	OpReadFile    OpKind = "read_file"
	OpWriteFile   OpKind = "write_file"
	OpShell       OpKind = "shell"
	OpGenerate    OpKind = "generate"
	OpHTTPGet     OpKind = "http_get"
	OpHTTPPost    OpKind = "http_post"
)

// Op is one effect request. Which fields are meaningful depends on Kind.
type Op struct {
	Kind    OpKind
	Path    string // file path or URL
	Text    string // output text, file content, request body or command
	Request *GenerateRequest
}

func ReadLine() Op { return Op{Kind: OpReadLine} }
func WriteOutput(text string) Op { return Op{Kind: OpWriteOutput, Text: text} }
func ReadFile(path string) Op { return Op{Kind: OpReadFile, Path: path} }
func WriteFile(path, text string) Op { return Op{Kind: OpWriteFile, Path: path, Text: text} }
func Shell(command string) Op { return Op{Kind: OpShell, Text: command} }
func Generate(req GenerateRequest) Op { return Op{Kind: OpGenerate, Request: &req} }
func HTTPGet(url string) Op { return Op{Kind: OpHTTPGet, Path: url} }
func HTTPPost(url, body string) Op { return Op{Kind: OpHTTPPost, Path: url, Text: body} }

// Boundary performs effects. Implementations are shared by every goroutine
// of a run and must be safe for concurrent use.
//
// Results by kind:
//
//	read_line             String, or None at end of input
//	read_file, http_*     String
//	shell                 String (combined output)
//	generate              Map{content: String, tool_calls: List[Map{name, arguments}]}
//	write_output/file     None
type Boundary interface {
	Perform(ctx context.Context, op Op) (ir.Value, error)
	AllowShell() bool
}

// Message is one entry of a generation conversation.
type Message struct {
	Role       string `json:"role" mapstructure:"role"`
	Content    string `json:"content" mapstructure:"content"`
	Name       string `json:"name,omitempty" mapstructure:"name"`
	ToolCallID string `json:"tool_call_id,omitempty" mapstructure:"tool_call_id"`

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty" mapstructure:"tool_calls"`
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema of the arguments object
}

// GenerateRequest asks a model for a completion.
type GenerateRequest struct {
	Model   string
	System  string
	Prompt  string
	History []Message
	Tools   []ToolSpec
	Format  string // requested structured-output type name, informational
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id,omitempty" mapstructure:"id"`
	Name      string         `json:"name" mapstructure:"name"`
	Arguments map[string]any `json:"arguments" mapstructure:"arguments"`
}

// Response is the result of a generation.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Value converts the response to the value handed to the engine.
func (r Response) Value() ir.Value {
	calls := make([]ir.Value, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		args, err := ir.FromGo(tc.Arguments)
		if err != nil || tc.Arguments == nil {
			args = ir.NewMap()
		}
		calls = append(calls, ir.NewMap(
			ir.P("id", ir.String(tc.ID)),
			ir.P("name", ir.String(tc.Name)),
			ir.P("arguments", args),
		))
	}
	return ir.NewMap(
		ir.P("content", ir.String(r.Content)),
		ir.P("tool_calls", ir.NewList(calls...)),
	)
}

// ResponseFromValue reverses Response.Value.
func ResponseFromValue(v ir.Value) (Response, error) {
	m, ok := v.(ir.Map)
	if !ok {
		return Response{}, fmt.Errorf("generation result must be Map, got %s", kindOf(v))
	}
	var r Response
	if c, ok := m.Get("content"); ok {
		if s, ok := c.(ir.String); ok {
			r.Content = string(s)
		}
	}
	calls, _ := m.Get("tool_calls")
	list, _ := calls.(ir.List)
	for _, item := range list.All() {
		cm, ok := item.(ir.Map)
		if !ok {
			continue
		}
		tc := ToolCall{}
		if n, ok := cm.Get("name"); ok {
			tc.Name = ir.Display(n)
		}
		if id, ok := cm.Get("id"); ok {
			tc.ID = ir.Display(id)
		}
		if a, ok := cm.Get("arguments"); ok {
			if args, ok := ir.ToGo(a).(map[string]any); ok {
				tc.Arguments = args
			}
		}
		r.ToolCalls = append(r.ToolCalls, tc)
	}
	return r, nil
}

func kindOf(v ir.Value) ir.Kind {
	if v == nil {
		return ir.KindNone
	}
	return v.Kind()
}
