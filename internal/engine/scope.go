package engine

import (
	"maps"
	"slices"

	"github.com/roach88/cognos/internal/ir"
)

// Scope holds variable bindings.
//
// A Scope is owned by exactly one goroutine. Concurrent constructs never
// share a Scope: each branch or task receives a Fork, and the join merges
// the forks back in the order it observed them finish.
//
// Binding rules:
//   - Lookup walks the parent chain.
//   - Assign writes to the nearest scope that already binds the name, or
//     creates the binding in the current scope.
//   - Define always binds in the current scope (parameters, loop and catch
//     variables).
type Scope struct {
	vars   map[string]ir.Value
	parent *Scope

	// touched records names a fork introduced or changed. Nil outside forks.
	touched map[string]bool
}

// NewScope creates an empty root scope.
func NewScope() *Scope {
	return &Scope{vars: map[string]ir.Value{}}
}

// Lookup returns the value bound to name.
func (s *Scope) Lookup(name string) (ir.Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign binds name in the nearest scope that introduced it, or in s.
func (s *Scope) Assign(name string, v ir.Value) {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.vars[name]; ok {
			sc.set(name, v)
			return
		}
	}
	s.set(name, v)
}

// Define binds name in s, shadowing any outer binding.
func (s *Scope) Define(name string, v ir.Value) {
	s.set(name, v)
}

func (s *Scope) set(name string, v ir.Value) {
	s.vars[name] = v
	if s.touched != nil {
		s.touched[name] = true
	}
}

// Child creates a nested block scope.
func (s *Scope) Child() *Scope {
	return &Scope{vars: map[string]ir.Value{}, parent: s}
}

// Fork returns an independent root scope holding every binding visible
// from s. The fork shares nothing mutable with s and may be used from
// another goroutine.
func (s *Scope) Fork() *Scope {
	var chain []*Scope
	for sc := s; sc != nil; sc = sc.parent {
		chain = append(chain, sc)
	}
	vars := map[string]ir.Value{}
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(vars, chain[i].vars)
	}
	return &Scope{vars: vars, touched: map[string]bool{}}
}

// Changes returns the bindings a fork introduced or changed, by name.
func (s *Scope) Changes() map[string]ir.Value {
	out := make(map[string]ir.Value, len(s.touched))
	for name := range s.touched {
		out[name] = s.vars[name]
	}
	return out
}

// Merge applies the changes of each fork to s, in argument order. When two
// forks wrote the same name the later one wins.
func (s *Scope) Merge(forks ...*Scope) {
	for _, f := range forks {
		for _, name := range slices.Sorted(maps.Keys(f.touched)) {
			s.Assign(name, f.vars[name])
		}
	}
}

// Names returns every visible name, sorted.
func (s *Scope) Names() []string {
	seen := map[string]bool{}
	for sc := s; sc != nil; sc = sc.parent {
		for name := range sc.vars {
			seen[name] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
