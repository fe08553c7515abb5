package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/ir"
)

func TestProgramBuilder_ValidPrograms(t *testing.T) {
	for _, p := range []*ir.Program{HelloProgram(), LeakProgram(), UnsatisfiableProgram(), PointProgram()} {
		assert.Empty(t, p.Validate(), "program %s should validate", p.Name)
	}
}

func TestProgramBuilder_BuildCopiesBody(t *testing.T) {
	b := NewProgram("p").Stmt(ir.Enter{})
	first := b.Build()
	b.Stmt(ir.Leave{})
	second := b.Build()

	assert.Len(t, first.Body, 1)
	assert.Len(t, second.Body, 2)
}

func TestProgramBuilder_Declarations(t *testing.T) {
	p := NewProgram("decl").
		Shape("Pair", "a", "b").
		IntVar("x", 1, 3).
		BoolVar("b").
		EnumVar("c", ir.String("red"), ir.String("blue")).
		Capacity(2).
		Build()

	require.Len(t, p.Vars, 3)
	assert.Equal(t, int64(3), p.Vars[0].Domain.Size())
	assert.Equal(t, int64(2), p.Vars[1].Domain.Size())
	assert.Equal(t, int64(2), p.Vars[2].Domain.Size())
	assert.Equal(t, []ir.Commitment{{Resource: "qpu", Capacity: 2}}, p.Uses)
	assert.Empty(t, p.Validate())
}

func TestFixedRunIDGenerator(t *testing.T) {
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").Generate())
	g := NewFixedRunIDGenerator("run-x")
	assert.Equal(t, "run-x", g.Generate())
	assert.Equal(t, "run-x", g.Generate())
}

func TestSequentialRunIDGenerator_ThreadSafe(t *testing.T) {
	g := NewSequentialRunIDGenerator("run")
	const n = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.True(t, seen["run-1"])
	assert.True(t, seen["run-50"])
}
