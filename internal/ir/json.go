package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ParseJSON decodes data into a Value. Object key order is preserved,
// integral numbers become Int and all other numbers Float.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Trailing content is an error, matching json.Unmarshal.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON: trailing data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var pairs []Pair
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("invalid JSON: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid JSON: object key %v is not a string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("object[%q]: %w", key, err)
				}
				pairs = append(pairs, P(key, val))
			}
			if _, err := dec.Token(); err != nil { // closing }
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return NewMap(pairs...), nil
		case '[':
			var items []Value
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("array[%d]: %w", len(items), err)
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return List{items: items}, nil
		}
		return nil, fmt.Errorf("invalid JSON: unexpected delimiter %v", t)
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return None{}, nil
	case json.Number:
		return numberValue(t)
	default:
		return nil, fmt.Errorf("invalid JSON: unexpected token %v", tok)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %s: %w", s, err)
	}
	return Float(f), nil
}

// FromGo converts a decoded Go value (as produced by encoding/json, yaml.v3
// or mapstructure) into a Value. Map keys from Go maps are sorted so the
// result is deterministic.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return None{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		return Int(val), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(val), nil
	case json.Number:
		return numberValue(val)
	case []any:
		items := make([]Value, len(val))
		for i, elem := range val {
			item, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = item
		}
		return List{items: items}, nil
	case []string:
		items := make([]Value, len(val))
		for i, s := range val {
			items[i] = String(s)
		}
		return List{items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]Pair, 0, len(keys))
		for _, k := range keys {
			item, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			pairs = append(pairs, P(k, item))
		}
		return NewMap(pairs...), nil
	case map[any]any:
		conv := make(map[string]any, len(val))
		for k, elem := range val {
			conv[fmt.Sprint(k)] = elem
		}
		return FromGo(conv)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts v into plain Go data (map[string]any, []any, string,
// int64, float64, bool, nil). Handles, modules and futures become their
// display strings.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case None, nil:
		return nil
	case List:
		out := make([]any, len(val.items))
		for i, item := range val.items {
			out[i] = ToGo(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			out[k] = ToGo(val.vals[k])
		}
		return out
	default:
		return Repr(v)
	}
}

// MarshalJSON encodes v as JSON, keeping Map insertion order.
// This is not canonical; use MarshalCanonical for digests.
func MarshalJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case List:
		buf.WriteByte('[')
		for i, item := range val.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Map:
		buf.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeJSON(buf, val.vals[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		b, err := json.Marshal(ToGo(v))
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
