package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event of the given
// kind whose fields include the expected ones (subset match).
func assertTraceContains(events []trace.Event, assertion Assertion) error {
	for _, ev := range events {
		if string(ev.Kind) == assertion.Kind && matchFields(ev, assertion.Fields) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event with fields %v", assertion.Kind, assertion.Fields),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceOrder checks that the kinds appear as a subsequence of the
// trace. Events don't need to be consecutive (intervening events are
// allowed), and a kind may be listed more than once.
func assertTraceOrder(events []trace.Event, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Kinds {
		found := false
		for pos < len(events) {
			ev := events[pos]
			pos++
			if string(ev.Kind) == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("no %s event after %s", want, describePrefix(assertion.Kinds[:i])),
				Trace:    events,
			}
		}
	}
	return nil
}

func describePrefix(kinds []string) string {
	if len(kinds) == 0 {
		return "the start of the trace"
	}
	return strings.Join(kinds, " -> ")
}

// assertTraceCount checks that exactly Count events of the kind (and
// matching fields, when given) were recorded.
func assertTraceCount(events []trace.Event, assertion Assertion) error {
	count := 0
	for _, ev := range events {
		if string(ev.Kind) == assertion.Kind && matchFields(ev, assertion.Fields) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}
	return nil
}

// matchFields checks if the event contains all expected fields (subset
// match). The key "error" matches the event's error text.
// Extra fields in the event are ignored.
func matchFields(ev trace.Event, expected map[string]any) bool {
	for key, want := range expected {
		var got any
		if key == "error" {
			got = ev.Error
		} else {
			v, ok := ev.Fields[key]
			if !ok {
				return false
			}
			got = v
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares an event field with a YAML value. Both sides go
// through ir.FromGo so that int, int64 and float64 compare by value.
func valuesEqual(actual, expected any) bool {
	a, err := ir.FromGo(actual)
	if err != nil {
		return false
	}
	e, err := ir.FromGo(expected)
	if err != nil {
		return false
	}
	return ir.Equal(a, e)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
