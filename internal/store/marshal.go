package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/trace"
)

// timeLayout is used for every stored timestamp. Fixed-width fractional
// seconds keep lexical and chronological order the same.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalResult converts a run result to canonical JSON TEXT. A nil result
// is stored as NULL. Values with no JSON form (handles, futures) are stored
// as their display string.
func marshalResult(v ir.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		data, err = ir.MarshalCanonical(ir.String(ir.Display(v)))
	}
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalResult parses stored JSON TEXT back into a Value. Integers stay
// Int: ir.ParseJSON decodes numbers without going through float64.
func unmarshalResult(data string) (ir.Value, error) {
	if data == "" {
		return nil, nil
	}
	v, err := ir.ParseJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return v, nil
}

// marshalFields converts event fields to JSON TEXT with sorted keys and
// HTML escaping disabled, so stored payloads match the JSONL sink byte for
// byte.
func marshalFields(f trace.Fields) (string, error) {
	if len(f) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(f)); err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalFields(data string) (trace.Fields, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var f trace.Fields
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return f, nil
}
