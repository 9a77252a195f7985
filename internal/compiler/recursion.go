package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cognos/internal/ast"
)

// RecursionWarning reports flows that can call themselves, directly or
// through other flows.
//
// Recursion is a warning, not an error, because it may be intentional:
//   - Retry by re-invoking the same flow
//   - Divide-and-conquer over nested data
//   - Agent loops that hand control back and forth
type RecursionWarning struct {
	Path    []string `json:"path"`    // Call path: ["plan", "act", "plan"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeRecursion builds the flow call graph of p and reports every
// strongly connected component that forms a cycle.
//
// Edges come from direct calls `name(...)` and from `invoke("name", ...)`
// with a literal name. Calls through eval or computed names are not
// visible statically.
func AnalyzeRecursion(p *ast.Program) []RecursionWarning {
	graph := buildCallGraph(p)
	if len(graph) == 0 {
		return []RecursionWarning{}
	}

	sccs := tarjanSCC(graph)

	warnings := []RecursionWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b RecursionWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// callGraph maps flow name → flows it calls.
type callGraph map[string][]string

func buildCallGraph(p *ast.Program) callGraph {
	flows := make(map[string]bool, len(p.Flows))
	for _, f := range p.Flows {
		flows[f.Name] = true
	}

	graph := make(callGraph, len(p.Flows))
	for _, f := range p.Flows {
		callees := []string{}
		ast.Inspect(f.Body, func(_ ast.Stmt, e ast.Expr) {
			call, ok := e.(*ast.Call)
			if !ok {
				return
			}
			target := call.Name
			if target == "invoke" && len(call.Args) > 0 {
				lit, ok := call.Args[0].(*ast.StringLit)
				if !ok {
					return
				}
				target = lit.Value
			}
			if flows[target] && !slices.Contains(callees, target) {
				callees = append(callees, target)
			}
		})
		graph[f.Name] = callees
	}
	return graph
}

func hasSelfLoop(node string, graph callGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are stable.
func tarjanSCC(graph callGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph callGraph) RecursionWarning {
	if len(scc) == 1 {
		name := scc[0]
		return RecursionWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("flow %s calls itself", name),
			Level:   "warning",
		}
	}

	path := cyclePath(scc, graph)
	return RecursionWarning{
		Path:    path,
		Message: fmt.Sprintf("mutually recursive flows: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside the SCC from its alphabetically first
// member until it returns to the start.
func cyclePath(scc []string, graph callGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
