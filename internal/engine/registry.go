package engine

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/schema"
)

// Registry maps names to flow and type definitions.
//
// The registry is the one piece of state shared by every goroutine of an
// Interpreter: eval may register new flows from inside a parallel branch
// and other branches see them immediately. Writes are last-wins.
type Registry struct {
	mu       sync.RWMutex
	flows    map[string]*ast.FlowDef
	types    map[string]schema.Type
	external schema.Resolver
}

// NewRegistry creates a registry. external resolves types not declared in
// any loaded program (for example CUE definitions); it may be nil.
func NewRegistry(external schema.Resolver) *Registry {
	return &Registry{
		flows:    map[string]*ast.FlowDef{},
		types:    map[string]schema.Type{},
		external: external,
	}
}

// Load registers every flow and type of p.
func (r *Registry) Load(p *ast.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, td := range p.Types {
		r.types[td.Name] = schema.FromTypeDef(td)
	}
	for _, f := range p.Flows {
		r.flows[f.Name] = f
	}
}

// RegisterFlow adds or replaces a flow.
func (r *Registry) RegisterFlow(f *ast.FlowDef) {
	r.mu.Lock()
	r.flows[f.Name] = f
	r.mu.Unlock()
}

// Flow returns the flow named name.
func (r *Registry) Flow(name string) (*ast.FlowDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	return f, ok
}

// FlowNames returns the registered flow names, sorted.
func (r *Registry) FlowNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.flows))
}

// TypeNames returns the names of program-declared types, sorted.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.types))
}

// ResolveType implements schema.Resolver. Program declarations shadow
// external types.
func (r *Registry) ResolveType(name string) (schema.Type, bool) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.external != nil {
		return r.external.ResolveType(name)
	}
	return nil, false
}
