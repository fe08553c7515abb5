package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

func sampleResult() *Result {
	r := NewResult("sample")
	r.Trace = engine.NewSuccessTrace(
		ir.NewStruct("Point", ir.F("x", ir.Int(1)), ir.F("y", ir.Int(2))),
		[]engine.EffectEvent{
			{Kind: "emit", Payload: "start"},
			{Kind: "qpu", Payload: "q#0"},
			{Kind: "emit", Payload: "done"},
		},
		5,
	)
	r.RealizerCalls = 3
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertEffectContains, Kind: "emit"},
		{Type: AssertEffectContains, Kind: "emit", Payload: "done"},
		{Type: AssertEffectOrder, Kinds: []string{"emit", "qpu"}},
		{Type: AssertEffectCount, Kind: "emit", Count: 2},
		{Type: AssertEffectCount, Kind: "log", Count: 0},
		{Type: AssertReturned, Value: "Point{x:1,y:2}"},
		{Type: AssertRealizerCalls, Count: 3},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{
			name:      "payload not found",
			assertion: Assertion{Type: AssertEffectContains, Kind: "emit", Payload: "missing"},
			want:      []string{`Expected: effect emit with payload "missing"`, "Actual: not found in effect log", "[3] emit: done"},
		},
		{
			name:      "order reversed",
			assertion: Assertion{Type: AssertEffectOrder, Kinds: []string{"qpu", "emit"}},
			want:      []string{"qpu (pos 2) should be before emit (pos 1)"},
		},
		{
			name:      "order missing kind",
			assertion: Assertion{Type: AssertEffectOrder, Kinds: []string{"emit", "log"}},
			want:      []string{"missing kind: log"},
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertEffectCount, Kind: "qpu", Count: 2},
			want:      []string{"Expected: 2 occurrences of qpu", "Actual: 1 occurrences"},
		},
		{
			name:      "returned",
			assertion: Assertion{Type: AssertReturned, Value: "unit"},
			want:      []string{"Actual: returned Point{x:1,y:2}"},
		},
		{
			name:      "realizer calls",
			assertion: Assertion{Type: AssertRealizerCalls, Count: 0},
			want:      []string{"Expected: 0 realizer calls", "Actual: 3 realizer calls"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "Assertion failed: "+tt.assertion.Type)
			for _, w := range tt.want {
				assert.Contains(t, errs[0], w)
			}
		})
	}
}

func TestEvaluateAssertions_FailedRun(t *testing.T) {
	r := NewResult("failed")
	r.Trace = engine.NewFailureTrace(engine.NewFault(engine.KindRuntimeFault, "division by zero"))

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertReturned, Value: "1"},
		{Type: AssertEffectCount, Kind: "emit", Count: 0},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "run failed: RuntimeFault: division by zero")
	assert.Equal(t, "RuntimeFault", r.Outcome())
}

func TestReturnedRendersNullForNoValue(t *testing.T) {
	r := NewResult("null")
	r.Trace = engine.NewSuccessTrace(nil, nil, 0)
	assert.Empty(t, EvaluateAssertions(r, []Assertion{{Type: AssertReturned, Value: "null"}}))
}
