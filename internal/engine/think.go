package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/trace"
)

// think asks the model for a completion.
//
//	think(prompt, model=, system=, history=, format=Type, tools=[...], max_turns=N)
//
// With format the response is decoded as JSON and validated against the
// type. With tools the model may request tool calls; each call runs and its
// result is fed back until a generation arrives without tool calls.
func (st *state) think(c *ast.Call) (ir.Value, error) {
	var (
		format schema.Type
		kwargs []ast.Kwarg
	)
	for _, kw := range c.Kwargs {
		if kw.Name != "format" {
			kwargs = append(kwargs, kw)
			continue
		}
		t, err := st.typeArg(kw.Value)
		if err != nil {
			return nil, err
		}
		format = t
	}

	args, kw, err := st.evalArgs(c.Args, kwargs)
	if err != nil {
		return nil, err
	}
	if err := arity("think", args, 1, 1); err != nil {
		return nil, err
	}

	req := effect.GenerateRequest{Prompt: ir.Display(args[0])}
	var tools []string
	maxTurns := st.in.maxTurns
	for name, v := range kw.All() {
		switch name {
		case "model":
			req.Model, err = stringArg("think", v)
		case "system":
			req.System, err = stringArg("think", v)
		case "history":
			req.History, err = historyArg(v)
		case "tools":
			tools, err = toolNames(v)
		case "max_turns":
			n, ok := v.(ir.Int)
			if !ok || n < 1 {
				err = Errorf("think() max_turns must be a positive Int, got %s", ir.Repr(v))
			}
			maxTurns = int(n)
		default:
			err = Errorf("think() got an unknown argument %q", name)
		}
		if err != nil {
			return nil, err
		}
	}

	if format != nil {
		req.Format = format.String()
		req.System = strings.TrimSpace(req.System + "\n\nRespond with JSON only, matching the type " + describeType(format, st.in.registry))
	}
	if len(tools) > 0 {
		specs, err := st.toolSpecs(tools)
		if err != nil {
			return nil, err
		}
		req.Tools = specs
	}

	content, err := st.generate(req, maxTurns)
	if err != nil {
		return nil, err
	}
	if format == nil {
		return ir.String(content), nil
	}
	return schema.Validator{Resolver: st.in.registry}.Decode(format, content)
}

// generate runs the tool loop. Without tools it is a single generation.
func (st *state) generate(req effect.GenerateRequest, maxTurns int) (string, error) {
	for turn := 1; ; turn++ {
		v, err := st.perform(effect.Generate(req))
		if err != nil {
			return "", err
		}
		resp, err := effect.ResponseFromValue(v)
		if err != nil {
			return "", Errorf("think: %v", err)
		}
		if len(req.Tools) == 0 || len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if turn >= maxTurns {
			return "", Errorf("think exceeded max_turns (%d) with tool calls pending", maxTurns)
		}

		if req.Prompt != "" {
			req.History = append(req.History, effect.Message{Role: "user", Content: req.Prompt})
			req.Prompt = ""
		}
		req.History = append(req.History, effect.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := st.runTool(call, req.Tools)
			if err != nil {
				return "", err
			}
			req.History = append(req.History, effect.Message{
				Role:       "tool",
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}
}

// runTool executes one requested tool call and returns the text fed back
// to the model. Tool failures become the returned text; only cancellation
// is returned as an error.
func (st *state) runTool(call effect.ToolCall, offered []effect.ToolSpec) (string, error) {
	var (
		result ir.Value
		err    error
	)
	switch {
	case !offersTool(offered, call.Name):
		err = Errorf("tool not available: %s", call.Name)
	case isShellTool(call.Name):
		cmd, _ := call.Arguments["command"].(string)
		if cmd == "" {
			err = Errorf("%s tool requires a command", call.Name)
			break
		}
		result, err = st.perform(effect.Shell(cmd))
	default:
		args := ir.NewMap()
		if call.Arguments != nil {
			v, convErr := ir.FromGo(call.Arguments)
			if convErr != nil {
				err = Errorf("tool %s: %v", call.Name, convErr)
				break
			}
			args = v.(ir.Map)
		}
		result, err = st.invoke(call.Name, args)
	}
	if IsCancelled(err) {
		return "", err
	}

	var content string
	fields := trace.Fields{"tool": call.Name}
	if err != nil {
		content = "error: " + Message(err)
		fields["error"] = Message(err)
	} else {
		content = ir.Display(result)
	}
	fields["result_chars"] = len(content)
	if st.in.tracer.Full() {
		fields["result"] = content
	}
	st.in.tracer.Emit(trace.KindToolExec, fields)
	st.in.logger.Debug("tool call", "tool", call.Name, "error", err)
	return content, nil
}

func offersTool(specs []effect.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

func isShellTool(name string) bool { return name == "shell" || name == "run" }

func toolNames(v ir.Value) ([]string, error) {
	l, ok := v.(ir.List)
	if !ok {
		return nil, Errorf("think() tools must be a List, got %s", kindOf(v))
	}
	names := make([]string, 0, l.Len())
	for _, item := range l.All() {
		s, ok := item.(ir.String)
		if !ok {
			return nil, Errorf("think() tool names must be String, got %s", kindOf(item))
		}
		names = append(names, string(s))
	}
	return names, nil
}

// toolSpecs describes the named tools. Shell tools take a command; any
// other name must be a registered flow and takes the flow's parameters.
func (st *state) toolSpecs(names []string) ([]effect.ToolSpec, error) {
	specs := make([]effect.ToolSpec, 0, len(names))
	for _, name := range names {
		if isShellTool(name) {
			specs = append(specs, effect.ToolSpec{
				Name:        name,
				Description: "Run a shell command and return its output",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"command": map[string]any{"type": "string"},
					},
					"required": []string{"command"},
				},
			})
			continue
		}
		flow, ok := st.in.registry.Flow(name)
		if !ok {
			return nil, NotFoundf("tool not found: %s", name)
		}
		props := map[string]any{}
		required := []string{}
		for _, p := range flow.Params {
			props[p.Name] = map[string]any{"type": jsonType(schema.FromTypeExpr(p.Type))}
			if p.Default == nil {
				required = append(required, p.Name)
			}
		}
		specs = append(specs, effect.ToolSpec{
			Name:        name,
			Description: "Call flow " + name,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return specs, nil
}

func jsonType(t schema.Type) string {
	switch t {
	case schema.Text:
		return "string"
	case schema.Int:
		return "integer"
	case schema.Float:
		return "number"
	case schema.Bool:
		return "boolean"
	}
	switch t.(type) {
	case *schema.List:
		return "array"
	case *schema.Map, *schema.Record:
		return "object"
	case *schema.Enum:
		return "string"
	}
	return "string"
}

func historyArg(v ir.Value) ([]effect.Message, error) {
	l, ok := v.(ir.List)
	if !ok {
		return nil, Errorf("think() history must be a List, got %s", kindOf(v))
	}
	msgs := make([]effect.Message, 0, l.Len())
	for i, item := range l.All() {
		m, ok := item.(ir.Map)
		if !ok {
			return nil, Errorf("think() history[%d] must be a Map, got %s", i, kindOf(item))
		}
		role, _ := m.Get("role")
		content, _ := m.Get("content")
		msg := effect.Message{Role: ir.Display(role), Content: ir.Display(content)}
		if name, ok := m.Get("name"); ok {
			msg.Name = ir.Display(name)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// describeType renders t with named types expanded one level, for the
// format instruction.
func describeType(t schema.Type, r schema.Resolver) string {
	ref, ok := t.(schema.Ref)
	if !ok {
		return t.String()
	}
	resolved, ok := r.ResolveType(ref.Name)
	if !ok {
		return ref.Name
	}
	return fmt.Sprintf("%s = %s", ref.Name, resolved)
}
