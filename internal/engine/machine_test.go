package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/ir"
	"github.com/roach88/dustrun/internal/testutil"
)

func TestExecute_EmitHello(t *testing.T) {
	trace := simulate(t, testutil.HelloProgram())

	assert.Equal(t,
		`{"returned":null,"effects":{"events":[{"kind":"emit","payload":"Hello"}]},"time":{"tick":1}}`,
		string(trace.Bytes()))
}

func TestExecute_LeakedAllocation(t *testing.T) {
	trace := simulate(t, testutil.LeakProgram())

	requireFault(t, trace, KindLinearityViolation, `resource "q" was never measured or deallocated`)
	assert.Equal(t,
		`{"error":{"kind":"LinearityViolation","message":"resource \"q\" was never measured or deallocated"}}`,
		string(trace.Bytes()))
}

func TestExecute_InadmissibleRealizesNothing(t *testing.T) {
	r := &countingRealizer{}
	m, err := NewMachine(testutil.UnsatisfiableProgram(), Config{Mode: ModeRealize},
		quietOptions(WithRealizers(Realizers{"emit": r}))...)
	require.NoError(t, err)

	trace, err := m.Run(context.Background())
	require.NoError(t, err)

	requireFault(t, trace, KindInadmissible, "constraint unsatisfiable: x Gt 5")
	assert.Empty(t, r.calls)
	assert.Empty(t, m.Effects())
	assert.Equal(t, uint64(0), m.Tick())
	assert.Equal(t, StateFailed, m.State())

	w, ok := m.Witness()
	require.True(t, ok)
	assert.Equal(t, WitnessNonExistent, w.Kind)
}

func TestExecute_PointStructFieldOrder(t *testing.T) {
	trace := simulate(t, testutil.PointProgram())

	require.True(t, trace.IsSuccess())
	assert.Equal(t,
		`{"returned":{"Struct":{"ty":"Point","fields":{"x":{"Int":1},"y":{"Int":2}}}},"effects":{"events":[]},"time":{"tick":2}}`,
		string(trace.Bytes()))

	var decoded Trace
	require.NoError(t, decoded.UnmarshalJSON(trace.Bytes()))
	assert.True(t, decoded.Equal(trace))
	assert.Equal(t, ir.NewStruct("Point",
		ir.Field{Name: "x", Value: ir.Int(1)},
		ir.Field{Name: "y", Value: ir.Int(2)},
	), decoded.Success.Returned)
}

// mixedProgram exercises every statement kind.
func mixedProgram() *ir.Program {
	return testutil.NewProgram("mixed").
		TypedShape("Reading", ir.ShapeField{Name: "label", Type: "String"}, ir.ShapeField{Name: "bit", Type: "Int"}).
		IntVar("n", 1, 4).
		Capacity(2).
		Stmt(
			ir.Constrain{Pred: "n Mul n Gt 5"},
			ir.Let{Name: "base", Expr: "40"},
			ir.Enter{},
			ir.Let{Name: "k", Expr: "base Add 2"},
			ir.Effect{Kind: "emit", Payload: "k"},
			ir.Alloc{Name: "q", Effect: "qpu"},
			ir.Use{Name: "q", Gate: "H", Effect: "qpu"},
			ir.Use{Name: "q", Gate: "X", Effect: "qpu"},
			ir.Move{Name: "q", Into: "r", Effect: "qpu"},
			ir.Measure{Name: "r", Into: "m", Effect: "qpu"},
			ir.Assert{Pred: "m Eq 1"},
			ir.Leave{},
			ir.Let{Name: "out", Expr: `Reading{label: "done", bit: base Sub 39}`},
			ir.Effect{Kind: "log", Payload: "out"},
			ir.Return{Expr: "out"},
			ir.Effect{Kind: "emit", Payload: `"after return"`},
		).
		Build()
}

func TestExecute_MixedProgram(t *testing.T) {
	trace := simulate(t, mixedProgram())

	require.True(t, trace.IsSuccess(), trace.String())
	assert.Equal(t, []EffectEvent{
		{Kind: "emit", Payload: "42"},
		{Kind: "qpu", Payload: "q#0"},
		{Kind: "qpu", Payload: "q#0 H"},
		{Kind: "qpu", Payload: "q#0 X"},
		{Kind: "qpu", Payload: "q#0 -> r"},
		{Kind: "qpu", Payload: "r#0 -> m=1"},
		{Kind: "log", Payload: `Reading{label:"done",bit:1}`},
	}, trace.Success.Effects)
	assert.Equal(t, uint64(14), trace.Success.Tick)
	assert.True(t, ir.Equal(ir.NewStruct("Reading", ir.F("label", ir.String("done")), ir.F("bit", ir.Int(1))), trace.Success.Returned))
}

func TestExecute_Deterministic(t *testing.T) {
	first := simulate(t, mixedProgram())
	for i := 0; i < 20; i++ {
		again := simulate(t, mixedProgram())
		require.Equal(t, string(first.Bytes()), string(again.Bytes()), "run %d diverged", i)
	}
}

func TestExecute_ModeInvariance(t *testing.T) {
	for _, prog := range []*ir.Program{mixedProgram(), testutil.HelloProgram(), testutil.LeakProgram()} {
		r := &countingRealizer{}
		simulated := simulate(t, prog)
		realized := execute(t, prog, Config{Mode: ModeRealize},
			WithRealizers(Realizers{"emit": r, "qpu": r, "log": r}))

		assert.Equal(t, string(simulated.Bytes()), string(realized.Bytes()), prog.Name)
		if simulated.IsSuccess() {
			assert.Len(t, r.calls, len(simulated.Success.Effects))
		}
	}
}

func TestExecute_ReturnWithoutExpr(t *testing.T) {
	prog := testutil.NewProgram("ret").Stmt(ir.Return{}).Build()
	trace := simulate(t, prog)
	assert.Equal(t, `{"returned":"Unit","effects":{"events":[]},"time":{"tick":1}}`, string(trace.Bytes()))
}

func TestExecute_EmptyBody(t *testing.T) {
	trace := simulate(t, testutil.NewProgram("empty").Build())
	assert.Equal(t, `{"returned":null,"effects":{"events":[]},"time":{"tick":0}}`, string(trace.Bytes()))
}

func TestExecute_EarlyReturnStillChecksLinearity(t *testing.T) {
	prog := testutil.NewProgram("early").
		Stmt(ir.Alloc{Name: "q"}, ir.Return{Expr: "1"}, ir.Dealloc{Name: "q"}).
		Build()
	requireFault(t, simulate(t, prog), KindLinearityViolation, `resource "q" was never measured or deallocated`)
}

func TestExecute_ProveBindsUnit(t *testing.T) {
	prog := testutil.NewProgram("prove").
		Stmt(
			ir.Let{Name: "x", Expr: "3"},
			ir.Prove{Name: "pf", From: "x Gt 1"},
			ir.Return{Expr: "pf"},
		).
		Build()

	trace := simulate(t, prog)
	require.True(t, trace.IsSuccess())
	assert.Equal(t, ir.Unit{}, trace.Success.Returned)
	assert.Equal(t, uint64(3), trace.Success.Tick)
}

func TestExecute_TypedAllocation(t *testing.T) {
	prog := testutil.NewProgram("typed").
		Capacity(2).
		Stmt(
			ir.Alloc{Name: "a", Type: "Qutrit"},
			ir.Alloc{Name: "b"},
			ir.Measure{Name: "a", Into: "ma"},
			ir.Dealloc{Name: "b"},
		).
		Build()

	m, err := NewMachine(prog, DefaultConfig(), quietOptions()...)
	require.NoError(t, err)
	trace, err := m.Run(context.Background())
	require.NoError(t, err)
	require.True(t, trace.IsSuccess())

	handles := m.Handles()
	require.Len(t, handles, 2)
	assert.Equal(t, "Qutrit", handles[0].Type)
	assert.Equal(t, ir.DefaultResourceType, handles[1].Type)
}

func TestExecute_RuntimeFaults(t *testing.T) {
	tests := []struct {
		name    string
		stmts   []ir.Stmt
		kind    ErrorKind
		message string
	}{
		{"division by zero", []ir.Stmt{ir.Let{Name: "x", Expr: "1 Div 0"}}, KindRuntimeFault, "division by zero"},
		{"unknown identifier", []ir.Stmt{ir.Effect{Kind: "emit", Payload: "ghost"}}, KindRuntimeFault, "unknown identifier: ghost"},
		{"type mismatch", []ir.Stmt{ir.Let{Name: "x", Expr: `1 Add "a"`}}, KindRuntimeFault, "Add requires Int operands"},
		{"overflow", []ir.Stmt{ir.Let{Name: "x", Expr: "9223372036854775807 Add 1"}}, KindRuntimeFault, "integer overflow"},
		{"assertion", []ir.Stmt{ir.Let{Name: "x", Expr: "1"}, ir.Assert{Pred: "x Gt 1"}}, KindRuntimeFault, "assertion failed: x Gt 1"},
		{"failed proof", []ir.Stmt{ir.Let{Name: "x", Expr: "1"}, ir.Prove{Name: "pf", From: "x Gt 1"}}, KindRuntimeFault, "proof failed: x Gt 1"},
		{"non-bool proof", []ir.Stmt{ir.Prove{Name: "pf", From: `"yes"`}}, KindRuntimeFault, "predicate must be Bool, got String"},
		{"non-bool assertion", []ir.Stmt{ir.Assert{Pred: "1"}}, KindRuntimeFault, "predicate must be Bool, got Int"},
		{"leave without enter", []ir.Stmt{ir.Leave{}}, KindRuntimeFault, "leave without matching enter"},
		{"scoped binding gone", []ir.Stmt{ir.Enter{}, ir.Let{Name: "x", Expr: "1"}, ir.Leave{}, ir.Return{Expr: "x"}}, KindRuntimeFault, "unknown identifier: x"},
		{"use after measure", []ir.Stmt{ir.Alloc{Name: "q"}, ir.Measure{Name: "q", Into: "m"}, ir.Use{Name: "q", Gate: "X"}}, KindLinearityViolation, `resource "q" already measured`},
		{"double dealloc", []ir.Stmt{ir.Alloc{Name: "q"}, ir.Dealloc{Name: "q"}, ir.Dealloc{Name: "q"}}, KindLinearityViolation, `resource "q" already deallocated`},
		{"unbound handle", []ir.Stmt{ir.Measure{Name: "q", Into: "m"}}, KindLinearityViolation, `unknown resource "q"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := testutil.NewProgram("fault").Stmt(tt.stmts...).Build()
			requireFault(t, simulate(t, prog), tt.kind, tt.message)
		})
	}
}

func TestMachine_FaultHaltsAndKeepsPartialLog(t *testing.T) {
	prog := testutil.NewProgram("halt").
		Stmt(
			ir.Effect{Kind: "emit", Payload: `"first"`},
			ir.Assert{Pred: "false"},
			ir.Effect{Kind: "emit", Payload: `"never"`},
		).
		Build()

	m, err := NewMachine(prog, DefaultConfig(), quietOptions()...)
	require.NoError(t, err)
	trace, err := m.Run(context.Background())
	require.NoError(t, err)

	requireFault(t, trace, KindRuntimeFault, "assertion failed: false")
	assert.Equal(t, []EffectEvent{{Kind: "emit", Payload: "first"}}, m.Effects())
	assert.Equal(t, uint64(2), m.Tick())
	assert.Equal(t, 1, m.PC())
}

func TestMachine_RealizationFailureEndsRun(t *testing.T) {
	r := &countingRealizer{failOn: map[string]bool{"alarm": true}}
	prog := testutil.NewProgram("realize").
		Stmt(
			ir.Effect{Kind: "emit", Payload: `"ok"`},
			ir.Effect{Kind: "alarm", Payload: `"boom"`},
			ir.Effect{Kind: "emit", Payload: `"never"`},
		).
		Build()

	m, err := NewMachine(prog, Config{Mode: ModeRealize}, quietOptions(WithRealizers(Realizers{"emit": r, "alarm": r}))...)
	require.NoError(t, err)
	trace, err := m.Run(context.Background())
	require.NoError(t, err)

	requireFault(t, trace, KindEffectRealizationFailure, `effect "alarm" could not be realized`)
	assert.Len(t, r.calls, 2)
	assert.Equal(t, []EffectEvent{{Kind: "emit", Payload: "ok"}}, m.Effects())
	assert.Equal(t, 1, m.Realized())
}

func TestMachine_SingleStep(t *testing.T) {
	prog := testutil.NewProgram("steps").
		IntVar("n", 0, 3).
		Stmt(
			ir.Constrain{Pred: "n Gt 1"},
			ir.Let{Name: "a", Expr: "1"},
			ir.Constrain{Pred: "n Lt 3"},
			ir.Effect{Kind: "emit", Payload: "a"},
		).
		Build()

	m, err := NewMachine(prog, DefaultConfig(), quietOptions()...)
	require.NoError(t, err)
	ctx := context.Background()
	assert.Equal(t, StateResolving, m.State())
	_, ok := m.Trace()
	assert.False(t, ok)

	// Resolution only.
	done, err := m.Step(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, StateStepping, m.State())
	assert.Equal(t, uint64(0), m.Tick())
	assert.Equal(t, 1, m.PC())
	w, ok := m.Witness()
	require.True(t, ok)
	assert.Equal(t, []Binding{{Name: "n", Value: ir.Int(2)}}, w.Assignment)

	next, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, ir.OpLet, next.Op())

	done, err = m.Step(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, uint64(1), m.Tick())
	assert.Equal(t, 3, m.PC(), "constrain statements are skipped without ticking")
	assert.Equal(t, []Binding{{Name: "a", Value: ir.Int(1)}}, m.Bindings())

	done, err = m.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, uint64(2), m.Tick())
	assert.Equal(t, StateSucceeded, m.State())

	// Terminal machines stay put.
	done, err = m.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, uint64(2), m.Tick())

	trace, ok := m.Trace()
	require.True(t, ok)
	assert.Equal(t, []EffectEvent{{Kind: "emit", Payload: "1"}}, trace.Success.Effects)
}

func TestMachine_TickMonotonic(t *testing.T) {
	m, err := NewMachine(mixedProgram(), DefaultConfig(), quietOptions()...)
	require.NoError(t, err)

	ctx := context.Background()
	last := m.Tick()
	for {
		done, err := m.Step(ctx)
		require.NoError(t, err)
		now := m.Tick()
		assert.LessOrEqual(t, now-last, uint64(1), "tick advanced by more than one")
		assert.GreaterOrEqual(t, now, last)
		last = now
		if done {
			break
		}
	}
	assert.Equal(t, uint64(14), last)
}

func TestMachine_Cancellation(t *testing.T) {
	m, err := NewMachine(mixedProgram(), DefaultConfig(), quietOptions()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 4; i++ {
		_, err := m.Step(ctx)
		require.NoError(t, err)
	}
	tick := m.Tick()
	effects := len(m.Effects())
	cancel()

	done, err := m.Step(ctx)
	assert.True(t, done)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, m.State())

	_, ok := m.Trace()
	assert.False(t, ok, "cancelled runs have no trace")
	assert.Equal(t, tick, m.Tick())
	assert.Len(t, m.Effects(), effects)

	_, err = m.Run(context.Background())
	assert.True(t, IsCancelled(err), "cancellation is sticky")
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trace, err := Execute(ctx, testutil.HelloProgram(), DefaultConfig(), quietOptions()...)
	assert.True(t, IsCancelled(err))
	assert.True(t, trace.IsZero())
}

func TestMachine_ReleaseOrder(t *testing.T) {
	prog := testutil.NewProgram("scopes").
		Stmt(
			ir.Let{Name: "r", Expr: "0"},
			ir.Enter{},
			ir.Let{Name: "a", Expr: "1"},
			ir.Let{Name: "b", Expr: "2"},
			ir.Enter{},
			ir.Let{Name: "c", Expr: "3"},
			ir.Leave{},
			ir.Let{Name: "d", Expr: "4"},
		).
		Build()

	m, err := NewMachine(prog, DefaultConfig(), quietOptions()...)
	require.NoError(t, err)
	trace, err := m.Run(context.Background())
	require.NoError(t, err)
	require.True(t, trace.IsSuccess())

	assert.Equal(t, []string{"c", "d", "b", "a", "r"}, m.Releases())
}

func TestMachine_ReleaseOrderOnFault(t *testing.T) {
	prog := testutil.NewProgram("scopes").
		Stmt(
			ir.Let{Name: "a", Expr: "1"},
			ir.Enter{},
			ir.Let{Name: "b", Expr: "2"},
			ir.Let{Name: "c", Expr: "1 Div 0"},
		).
		Build()

	m, err := NewMachine(prog, DefaultConfig(), quietOptions()...)
	require.NoError(t, err)
	trace, err := m.Run(context.Background())
	require.NoError(t, err)
	requireFault(t, trace, KindRuntimeFault, "division by zero")
	assert.Equal(t, []string{"b", "a"}, m.Releases())
}

func TestNewMachine_Preconditions(t *testing.T) {
	_, err := NewMachine(nil, DefaultConfig())
	assert.True(t, IsPrecondition(err))

	bad := testutil.NewProgram("").Stmt(ir.Let{Name: "1x", Expr: "1 Add"}).Build()
	_, err = NewMachine(bad, DefaultConfig())
	require.Error(t, err)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Problems, 3)

	_, err = NewMachine(testutil.HelloProgram(), Config{Mode: "dry-run"})
	assert.True(t, IsPrecondition(err))
}

func TestNewMachine_RunID(t *testing.T) {
	m, err := NewMachine(testutil.HelloProgram(), Config{},
		WithRunIDGenerator(NewFixedGenerator("run-7")))
	require.NoError(t, err)
	assert.Equal(t, "run-7", m.RunID())
	assert.Equal(t, ModeSimulate, m.Config().Mode, "empty mode defaults to simulate")
}
