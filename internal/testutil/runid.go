package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator returns the same run id every time.
//
// Useful where a single run is expected and its id appears in golden
// output or store rows.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator returning id.
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequentialRunIDGenerator returns prefix-1, prefix-2, ... and never runs out.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialRunIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDGenerator creates a generator with the given prefix.
func NewSequentialRunIDGenerator(prefix string) *SequentialRunIDGenerator {
	return &SequentialRunIDGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
func (g *SequentialRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
