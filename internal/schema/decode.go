package schema

import (
	"strings"

	"github.com/roach88/cognos/internal/ir"
)

// Decode parses a model response as JSON and validates it against t.
// A fenced ```json block is accepted, as is leading or trailing prose
// around a single JSON object or array.
func (v Validator) Decode(t Type, text string) (ir.Value, error) {
	raw, err := ir.ParseJSON([]byte(ExtractJSON(text)))
	if err != nil {
		return nil, &ValidationError{Reason: "response is not valid JSON: " + err.Error()}
	}
	return v.Validate(t, raw)
}

// ExtractJSON returns the JSON payload of text.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			// Drop the info string (```json).
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		return s[open : end+1]
	}
	return s
}
