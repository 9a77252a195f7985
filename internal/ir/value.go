package ir

import (
	"fmt"
	"iter"
	"slices"
)

// Value is a sealed interface over the runtime value variants.
// Only the types in this package implement it.
type Value interface {
	isValue() // Sealed
	Kind() Kind
}

// Kind names a Value variant. Used in error messages and schema checks.
type Kind string

const (
	KindString Kind = "String"
	KindInt    Kind = "Int"
	KindFloat  Kind = "Float"
	KindBool   Kind = "Bool"
	KindNone   Kind = "None"
	KindList   Kind = "List"
	KindMap    Kind = "Map"
	KindHandle Kind = "Handle"
	KindModule Kind = "Module"
	KindFuture Kind = "Future"
)

// String is a text value.
type String string

func (String) isValue()   {}
func (String) Kind() Kind { return KindString }

// Int is a 64-bit signed integer value.
type Int int64

func (Int) isValue()   {}
func (Int) Kind() Kind { return KindInt }

// Float is a 64-bit floating point value.
type Float float64

func (Float) isValue()   {}
func (Float) Kind() Kind { return KindFloat }

// Bool is a boolean value.
type Bool bool

func (Bool) isValue()   {}
func (Bool) Kind() Kind { return KindBool }

// None is the absent value. The zero value is the only instance.
type None struct{}

func (None) isValue()   {}
func (None) Kind() Kind { return KindNone }

// List is an ordered, heterogeneous, immutable sequence.
// The zero value is an empty list.
type List struct {
	items []Value
}

func (List) isValue()   {}
func (List) Kind() Kind { return KindList }

// NewList creates a List holding a copy of vals.
func NewList(vals ...Value) List {
	return List{items: slices.Clone(vals)}
}

// Len returns the number of elements.
func (l List) Len() int { return len(l.items) }

// At returns the element at index i. Panics if out of range; callers
// bounds-check first.
func (l List) At(i int) Value { return l.items[i] }

// Items returns a copy of the elements.
func (l List) Items() []Value { return slices.Clone(l.items) }

// All iterates over index/element pairs.
func (l List) All() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i, v := range l.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Append returns a new List with v added at the end.
func (l List) Append(v Value) List {
	items := make([]Value, len(l.items), len(l.items)+1)
	copy(items, l.items)
	return List{items: append(items, v)}
}

// Concat returns a new List with the elements of l followed by other.
func (l List) Concat(other List) List {
	items := make([]Value, 0, len(l.items)+len(other.items))
	items = append(items, l.items...)
	return List{items: append(items, other.items...)}
}

// Slice returns a new List with elements [from, to).
func (l List) Slice(from, to int) List {
	return List{items: slices.Clone(l.items[from:to])}
}

// Equal reports structural equality. Used by go-cmp.
func (l List) Equal(other List) bool {
	return Equal(l, other)
}

// Map is an immutable string-keyed map that preserves insertion order.
// The zero value is an empty map.
type Map struct {
	keys []string
	vals map[string]Value
}

func (Map) isValue()   {}
func (Map) Kind() Kind { return KindMap }

// Pair is a key/value entry used to build a Map in order.
type Pair struct {
	Key   string
	Value Value
}

// P is shorthand for Pair.
// Example: NewMap(P("name", String("ada")), P("age", Int(36)))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewMap creates a Map from pairs. A repeated key keeps its first
// position and takes the last value.
func NewMap(pairs ...Pair) Map {
	m := Map{keys: make([]string, 0, len(pairs)), vals: make(map[string]Value, len(pairs))}
	for _, p := range pairs {
		if _, ok := m.vals[p.Key]; !ok {
			m.keys = append(m.keys, p.Key)
		}
		m.vals[p.Key] = p.Value
	}
	return m
}

// Len returns the number of entries.
func (m Map) Len() int { return len(m.keys) }

// Get returns the value for key and whether it was present.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m.vals[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m Map) Keys() []string { return slices.Clone(m.keys) }

// All iterates over entries in insertion order.
func (m Map) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, k := range m.keys {
			if !yield(k, m.vals[k]) {
				return
			}
		}
	}
}

// With returns a new Map with key set to v. An existing key keeps its
// position.
func (m Map) With(key string, v Value) Map {
	out := Map{keys: slices.Clone(m.keys), vals: make(map[string]Value, len(m.vals)+1)}
	for k, val := range m.vals {
		out.vals[k] = val
	}
	if _, ok := out.vals[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.vals[key] = v
	return out
}

// Without returns a new Map with key removed.
func (m Map) Without(key string) Map {
	if !m.Has(key) {
		return m
	}
	out := Map{keys: make([]string, 0, len(m.keys)-1), vals: make(map[string]Value, len(m.vals)-1)}
	for _, k := range m.keys {
		if k == key {
			continue
		}
		out.keys = append(out.keys, k)
		out.vals[k] = m.vals[k]
	}
	return out
}

// Equal reports structural equality, ignoring key order. Used by go-cmp.
func (m Map) Equal(other Map) bool {
	return Equal(m, other)
}

// HandleKind identifies the endpoint a Handle refers to.
type HandleKind string

const (
	HandleStdin  HandleKind = "stdin"
	HandleStdout HandleKind = "stdout"
	HandleFile   HandleKind = "file"
)

// Handle is an opaque reference to an I/O endpoint.
// Path is set only for HandleFile.
type Handle struct {
	Endpoint HandleKind
	Path     string
}

func (Handle) isValue()   {}
func (Handle) Kind() Kind { return KindHandle }

// Stdin returns the standard input handle.
func Stdin() Handle { return Handle{Endpoint: HandleStdin} }

// Stdout returns the standard output handle.
func Stdout() Handle { return Handle{Endpoint: HandleStdout} }

// File returns a handle to the file at path.
func File(path string) Handle { return Handle{Endpoint: HandleFile, Path: path} }

// Module is an opaque reference to a native capability namespace such as
// "http" or "json".
type Module struct {
	Name string
}

func (Module) isValue()   {}
func (Module) Kind() Kind { return KindModule }

// Awaitable is the background computation behind a Future.
// Implemented by the engine's task type.
type Awaitable interface {
	ID() string
}

// Future references a background computation. Two Futures are equal only
// if they reference the same computation.
type Future struct {
	Ref Awaitable
}

func (Future) isValue()   {}
func (Future) Kind() Kind { return KindFuture }

// Truthy reports whether v counts as true in a condition.
// Empty strings, zero numbers, false, None and empty containers are falsy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case String:
		return val != ""
	case Int:
		return val != 0
	case Float:
		return val != 0
	case Bool:
		return bool(val)
	case None, nil:
		return false
	case List:
		return val.Len() > 0
	case Map:
		return val.Len() > 0
	default:
		return true
	}
}

// Equal reports structural equality. Int and Float compare numerically.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return Float(x) == y
		}
		return false
	case Float:
		switch y := b.(type) {
		case Float:
			return x == y
		case Int:
			return x == Float(y)
		}
		return false
	case List:
		y, ok := b.(List)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i := range x.items {
			if !Equal(x.items[i], y.items[i]) {
				return false
			}
		}
		return true
	case Map:
		y, ok := b.(Map)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for k, v := range x.vals {
			w, ok := y.vals[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case Future:
		y, ok := b.(Future)
		return ok && x.Ref == y.Ref
	case nil:
		return b == nil
	default:
		return a == b
	}
}

// MustGet returns the value for key or panics. Test helper.
func (m Map) MustGet(key string) Value {
	v, ok := m.vals[key]
	if !ok {
		panic(fmt.Sprintf("ir.Map: no key %q", key))
	}
	return v
}
