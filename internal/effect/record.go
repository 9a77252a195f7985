package effect

import (
	"time"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// outcome is what an implementation learned while performing an op.
// record turns it into exactly one trace event.
type outcome struct {
	result   ir.Value
	err      error
	latency  time.Duration
	exitCode int
	status   int
	model    string
	provider string
	resp     Response
}

func record(tr *trace.Tracer, op Op, o outcome) {
	ms := o.latency.Milliseconds()
	switch op.Kind {
	case OpGenerate:
		tr.NextTurn()
		req := op.Request
		if req == nil {
			req = &GenerateRequest{}
		}
		f := trace.Fields{
			"model":          o.model,
			"provider":       o.provider,
			"latency_ms":     ms,
			"prompt_chars":   promptChars(req),
			"response_chars": len(o.resp.Content),
			"has_tool_calls": len(o.resp.ToolCalls) > 0,
		}
		if tr.Full() {
			f["system"] = req.System
			f["prompt"] = req.Prompt
			f["response"] = o.resp.Content
		}
		tr.EmitError(trace.KindGenerate, f, o.err)

	case OpShell:
		out := resultText(o.result)
		f := trace.Fields{
			"command":      op.Text,
			"latency_ms":   ms,
			"exit_code":    o.exitCode,
			"output_chars": len(out),
		}
		if tr.Full() {
			f["output"] = out
		}
		tr.EmitError(trace.KindShell, f, o.err)

	case OpHTTPGet, OpHTTPPost:
		method := "GET"
		if op.Kind == OpHTTPPost {
			method = "POST"
		}
		tr.EmitError(trace.KindHTTP, trace.Fields{
			"method":     method,
			"url":        op.Path,
			"latency_ms": ms,
			"status":     o.status,
			"bytes":      len(resultText(o.result)),
		}, o.err)

	default:
		f := trace.Fields{"op": string(op.Kind)}
		switch op.Kind {
		case OpReadLine:
			f["handle"] = string(ir.HandleStdin)
			f["bytes"] = len(resultText(o.result))
		case OpWriteOutput:
			f["handle"] = string(ir.HandleStdout)
			f["bytes"] = len(op.Text)
		case OpReadFile:
			f["handle"] = string(ir.HandleFile)
			f["path"] = op.Path
			f["bytes"] = len(resultText(o.result))
		case OpWriteFile:
			f["handle"] = string(ir.HandleFile)
			f["path"] = op.Path
			f["bytes"] = len(op.Text)
		}
		tr.EmitError(trace.KindIO, f, o.err)
	}
}

func promptChars(req *GenerateRequest) int {
	n := len(req.System) + len(req.Prompt)
	for _, m := range req.History {
		n += len(m.Content)
	}
	return n
}

func resultText(v ir.Value) string {
	if s, ok := v.(ir.String); ok {
		return string(s)
	}
	return ""
}
