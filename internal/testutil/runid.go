package testutil

import (
	"fmt"
	"sync"
)

// RunIDGenerator generates predictable run ids: prefix-1, prefix-2, ...
//
// This enables deterministic test execution and golden snapshot comparison
// when the same scenario is run several times in one process, for example
// to check that two replays produce the same output.
//
// Unlike trace.FixedGenerator, which returns a predetermined list and panics
// once it runs out, this generator never runs out.
//
// Thread-safety: RunIDGenerator is safe for concurrent use via internal mutex.
type RunIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewRunIDGenerator creates a generator with the given prefix.
//
// If prefix is empty, ids look like "test-run-1".
func NewRunIDGenerator(prefix string) *RunIDGenerator {
	if prefix == "" {
		prefix = "test-run"
	}
	return &RunIDGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements trace.IDGenerator.
func (g *RunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
