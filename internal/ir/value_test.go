package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		value Value
		kind  Kind
	}{
		{String("x"), KindString},
		{Int(1), KindInt},
		{Float(1.5), KindFloat},
		{Bool(true), KindBool},
		{None{}, KindNone},
		{NewList(), KindList},
		{NewMap(), KindMap},
		{Stdout(), KindHandle},
		{Module{Name: "json"}, KindModule},
		{Future{}, KindFuture},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.value.Kind())
		})
	}
}

func TestListIsImmutable(t *testing.T) {
	src := []Value{Int(1), Int(2)}
	l := NewList(src...)
	src[0] = Int(99)

	assert.Equal(t, Int(1), l.At(0), "NewList must copy its input")

	items := l.Items()
	items[1] = Int(42)
	assert.Equal(t, Int(2), l.At(1), "Items must return a copy")

	l2 := l.Append(Int(3))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 3, l2.Len())
}

func TestMapWithPreservesOriginalAndOrder(t *testing.T) {
	m := NewMap(P("b", Int(1)), P("a", Int(2)))
	m2 := m.With("c", Int(3)).With("b", Int(10))

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	assert.Equal(t, []string{"b", "a", "c"}, m2.Keys())
	assert.Equal(t, Int(1), m.MustGet("b"))
	assert.Equal(t, Int(10), m2.MustGet("b"))

	m3 := m2.Without("a")
	assert.Equal(t, []string{"b", "c"}, m3.Keys())
	assert.True(t, m2.Has("a"))
}

func TestNewMapDuplicateKeys(t *testing.T) {
	m := NewMap(P("k", Int(1)), P("j", Int(2)), P("k", Int(3)))

	assert.Equal(t, []string{"k", "j"}, m.Keys())
	assert.Equal(t, Int(3), m.MustGet("k"))
}

func TestTruthy(t *testing.T) {
	falsy := []Value{String(""), Int(0), Float(0), Bool(false), None{}, NewList(), NewMap()}
	truthy := []Value{String("x"), Int(-1), Float(0.1), Bool(true), NewList(None{}), NewMap(P("a", None{})), Stdin(), Module{Name: "http"}}

	for _, v := range falsy {
		assert.False(t, Truthy(v), "%s should be falsy", Repr(v))
	}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%s should be truthy", Repr(v))
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(2), Float(2.0)), "int and float compare numerically")
	assert.True(t, Equal(NewMap(P("a", Int(1)), P("b", Int(2))), NewMap(P("b", Int(2)), P("a", Int(1)))))
	assert.False(t, Equal(NewList(Int(1)), NewList(Int(1), Int(2))))
	assert.False(t, Equal(String("1"), Int(1)))
	assert.True(t, Equal(None{}, None{}))
	assert.True(t, Equal(File("a.txt"), File("a.txt")))
	assert.False(t, Equal(File("a.txt"), File("b.txt")))
}

func TestCmpUsesEqualMethods(t *testing.T) {
	a := NewMap(P("xs", NewList(Int(1), Float(2))))
	b := NewMap(P("xs", NewList(Int(1), Int(2))))

	assert.Empty(t, cmp.Diff(a, b))
	assert.NotEmpty(t, cmp.Diff(a, NewMap(P("xs", NewList(Int(1))))))
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"string raw", String("hi"), "hi"},
		{"int", Int(42), "42"},
		{"float", Float(3.14), "3.14"},
		{"integral float", Float(3), "3.0"},
		{"bool", Bool(false), "false"},
		{"none", None{}, ""},
		{"list", NewList(Int(1), String("a"), None{}), `[1, "a", none]`},
		{"map", NewMap(P("a", Int(1)), P("b", NewList())), `{"a": 1, "b": []}`},
		{"stdin", Stdin(), "<stdin>"},
		{"file", File("out.txt"), "<file:out.txt>"},
		{"module", Module{Name: "http"}, "<module http>"},
		{"future", Future{}, "<future>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Display(tt.value))
		})
	}
}

func TestParseJSONPreservesKeyOrder(t *testing.T) {
	v, err := ParseJSON([]byte(`{"zeta": 1, "alpha": [1, 2.5, "x", null, true], "mid": {"b": 1, "a": 2}}`))
	require.NoError(t, err)

	m, ok := v.(Map)
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

	alpha := m.MustGet("alpha").(List)
	assert.Equal(t, Int(1), alpha.At(0))
	assert.Equal(t, Float(2.5), alpha.At(1))
	assert.Equal(t, None{}, alpha.At(3))
	assert.Equal(t, []string{"b", "a"}, m.MustGet("mid").(Map).Keys())
}

func TestParseJSONErrors(t *testing.T) {
	for _, input := range []string{`{"a":`, `[1,]`, `{"a":1} x`, ``} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseJSON([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestMarshalJSONKeepsInsertionOrder(t *testing.T) {
	v := NewMap(P("z", Int(1)), P("a", NewList(Float(1.5), None{}, Bool(true))))

	data, err := MarshalJSON(v)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":[1.5,null,true]}`, string(data))
}

func TestFromGoRoundTrip(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "ada",
		"tags":  []any{"x", 2, 2.5},
		"inner": map[string]any{"ok": true},
		"none":  nil,
	})
	require.NoError(t, err)

	expected := NewMap(
		P("inner", NewMap(P("ok", Bool(true)))),
		P("name", String("ada")),
		P("none", None{}),
		P("tags", NewList(String("x"), Int(2), Float(2.5))),
	)
	if diff := cmp.Diff(expected, v); diff != "" {
		t.Errorf("FromGo mismatch (-want +got):\n%s", diff)
	}

	back := ToGo(v).(map[string]any)
	assert.Equal(t, "ada", back["name"])
	assert.Equal(t, []any{"x", int64(2), 2.5}, back["tags"])
}

func TestFromGoUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}
