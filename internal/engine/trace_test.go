package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/ir"
)

func TestTrace_MarshalFixedKeyOrder(t *testing.T) {
	success := NewSuccessTrace(ir.String("<ok>"), []EffectEvent{{Kind: "emit", Payload: "a&b"}}, 3)
	assert.Equal(t,
		`{"returned":{"String":"<ok>"},"effects":{"events":[{"kind":"emit","payload":"a&b"}]},"time":{"tick":3}}`,
		string(success.Bytes()))

	failure := NewFailureTrace(NewFault(KindRuntimeFault, "division by zero"))
	assert.Equal(t, `{"error":{"kind":"RuntimeFault","message":"division by zero"}}`, string(failure.Bytes()))
}

func TestTrace_MarshalEmpty(t *testing.T) {
	_, err := Trace{}.MarshalJSON()
	assert.Error(t, err)
	assert.Equal(t, "<empty trace>", Trace{}.String())
}

func TestTrace_RoundTrip(t *testing.T) {
	traces := []Trace{
		NewSuccessTrace(nil, nil, 0),
		NewSuccessTrace(ir.Unit{}, []EffectEvent{{Kind: "emit", Payload: "Hello"}}, 1),
		NewSuccessTrace(ir.NewStruct("P", ir.F("b", ir.Int(2)), ir.F("a", ir.Bool(true))), nil, 9),
		NewFailureTrace(NewFault(KindReplayMismatch, "replayed trace differs from recorded trace")),
	}
	for _, tr := range traces {
		var got Trace
		require.NoError(t, json.Unmarshal(tr.Bytes(), &got), tr.String())
		assert.True(t, got.Equal(tr), "round trip of %s gave %s", tr, got)
	}
}

func TestTrace_UnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown key", `{"returned":null,"effects":{"events":[]},"time":{"tick":0},"extra":1}`},
		{"missing time", `{"returned":null,"effects":{"events":[]}}`},
		{"missing returned", `{"effects":{"events":[]},"time":{"tick":0}}`},
		{"mixed variants", `{"returned":null,"error":{"kind":"RuntimeFault","message":"x"}}`},
		{"unknown kind", `{"error":{"kind":"Timeout","message":"x"}}`},
		{"float returned", `{"returned":{"Int":1.5},"effects":{"events":[]},"time":{"tick":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Trace
			assert.Error(t, json.Unmarshal([]byte(tt.json), &tr))
		})
	}
}

func TestTrace_Fault(t *testing.T) {
	f := NewFault(KindInadmissible, "constraint unsatisfiable: x Gt 5")
	tr := NewFailureTrace(f)
	assert.False(t, tr.IsSuccess())
	assert.Equal(t, f, tr.Fault())
	assert.Nil(t, NewSuccessTrace(nil, nil, 0).Fault())
}

func TestTrace_Digest(t *testing.T) {
	a := NewSuccessTrace(nil, nil, 1)
	b := NewSuccessTrace(nil, nil, 2)
	assert.Len(t, a.Digest(), 64)
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Digest(), NewSuccessTrace(nil, []EffectEvent{}, 1).Digest())
}
