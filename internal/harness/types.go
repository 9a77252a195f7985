package harness

import (
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and every assertion hold.
	Pass bool `json:"pass"`

	// RunID is the correlation id shared by every trace event of the run.
	RunID string `json:"run_id"`

	// Output contains the lines the program wrote to stdout.
	Output []string `json:"output"`

	// Value is the entry flow's return value, nil when the run failed.
	Value ir.Value `json:"-"`

	// ErrorKind and Error describe the uncaught error, if any.
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// Digest is ir.OutputDigest of Output and Value. Two runs of the same
	// scenario must produce the same digest.
	Digest string `json:"digest,omitempty"`

	// Trace contains every event in seq order.
	// Used for trace assertions and golden comparison.
	Trace []trace.Event `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Output: []string{},
		Trace:  []trace.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Kinds returns the kind of every trace event, in order.
func (r *Result) Kinds() []trace.Kind {
	out := make([]trace.Kind, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Kind
	}
	return out
}
