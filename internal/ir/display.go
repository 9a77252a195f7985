package ir

import (
	"math"
	"strconv"
	"strings"
)

// Display renders v the way emit and f-strings show it.
// Top-level strings are written raw and None renders as the empty string.
func Display(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case None, nil:
		return ""
	default:
		return Repr(v)
	}
}

// Repr renders v as it appears inside a container: strings are quoted.
func Repr(v Value) string {
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case String:
		b.WriteString(strconv.Quote(string(val)))
	case Int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		b.WriteString(FormatFloat(float64(val)))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case None, nil:
		b.WriteString("none")
	case List:
		b.WriteByte('[')
		for i, item := range val.items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, item)
		}
		b.WriteByte(']')
	case Map:
		b.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			writeRepr(b, val.vals[k])
		}
		b.WriteByte('}')
	case Handle:
		switch val.Endpoint {
		case HandleFile:
			b.WriteString("<file:" + val.Path + ">")
		default:
			b.WriteString("<" + string(val.Endpoint) + ">")
		}
	case Module:
		b.WriteString("<module " + val.Name + ">")
	case Future:
		b.WriteString("<future>")
	}
}

// FormatFloat renders f with the shortest round-trip digits, always
// keeping a decimal point for finite values (3 -> "3.0").
func FormatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
