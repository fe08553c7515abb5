package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/dustrun/internal/ir"
)

// SuccessTrace is the outcome of a run that reached the end of its body
// or a return statement.
type SuccessTrace struct {
	Returned ir.Value // nil encodes as null
	Effects  []EffectEvent
	Tick     uint64
}

// FailureTrace is the outcome of a run that ended in a Fault.
// It deliberately carries no effects and no tick.
type FailureTrace struct {
	Kind    ErrorKind
	Message string
}

// Trace is exactly one of Success or Failure.
type Trace struct {
	Success *SuccessTrace
	Failure *FailureTrace
}

// NewSuccessTrace assembles a success trace.
func NewSuccessTrace(returned ir.Value, effects []EffectEvent, tick uint64) Trace {
	if effects == nil {
		effects = []EffectEvent{}
	}
	return Trace{Success: &SuccessTrace{Returned: returned, Effects: effects, Tick: tick}}
}

// NewFailureTrace assembles a failure trace from a fault.
func NewFailureTrace(f *Fault) Trace {
	return Trace{Failure: &FailureTrace{Kind: f.Kind, Message: f.Message}}
}

// IsSuccess reports whether t is a SuccessTrace.
func (t Trace) IsSuccess() bool {
	return t.Success != nil
}

// IsZero reports whether t holds neither variant.
func (t Trace) IsZero() bool {
	return t.Success == nil && t.Failure == nil
}

// Fault returns the failure as a Fault, or nil for a success.
func (t Trace) Fault() *Fault {
	if t.Failure == nil {
		return nil
	}
	return &Fault{Kind: t.Failure.Kind, Message: t.Failure.Message}
}

// MarshalJSON writes the trace with a fixed key order:
//
//	{"returned":<value|null>,"effects":{"events":[...]},"time":{"tick":n}}
//	{"error":{"kind":"<ErrorKind>","message":"..."}}
//
// The encoding is byte-stable; replay compares traces by these bytes.
func (t Trace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	switch {
	case t.Success != nil && t.Failure == nil:
		s := t.Success
		buf.WriteString(`{"returned":`)
		if s.Returned == nil {
			buf.WriteString("null")
		} else {
			b, err := ir.MarshalValue(s.Returned)
			if err != nil {
				return nil, fmt.Errorf("marshal returned value: %w", err)
			}
			buf.Write(b)
		}
		buf.WriteString(`,"effects":{"events":[`)
		for i, ev := range s.Effects {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(`{"kind":`)
			if err := ir.WriteJSONString(&buf, ev.Kind); err != nil {
				return nil, err
			}
			buf.WriteString(`,"payload":`)
			if err := ir.WriteJSONString(&buf, ev.Payload); err != nil {
				return nil, err
			}
			buf.WriteByte('}')
		}
		buf.WriteString(`]},"time":{"tick":`)
		buf.WriteString(strconv.FormatUint(s.Tick, 10))
		buf.WriteString("}}")
	case t.Failure != nil && t.Success == nil:
		buf.WriteString(`{"error":{"kind":`)
		if err := ir.WriteJSONString(&buf, string(t.Failure.Kind)); err != nil {
			return nil, err
		}
		buf.WriteString(`,"message":`)
		if err := ir.WriteJSONString(&buf, t.Failure.Message); err != nil {
			return nil, err
		}
		buf.WriteString("}}")
	default:
		return nil, errors.New("trace must hold exactly one of success or failure")
	}
	return buf.Bytes(), nil
}

type traceJSON struct {
	Returned json.RawMessage `json:"returned"`
	Effects  *struct {
		Events []EffectEvent `json:"events"`
	} `json:"effects"`
	Time *struct {
		Tick uint64 `json:"tick"`
	} `json:"time"`
	Error *struct {
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	} `json:"error"`
}

// UnmarshalJSON decodes either trace variant. Unknown keys, mixed
// variants and unknown error kinds are rejected.
func (t *Trace) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w traceJSON
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decode trace: %w", err)
	}

	if w.Error != nil {
		if w.Returned != nil || w.Effects != nil || w.Time != nil {
			return errors.New("decode trace: error trace mixed with success fields")
		}
		if !w.Error.Kind.Valid() {
			return fmt.Errorf("decode trace: unknown error kind %q", w.Error.Kind)
		}
		*t = Trace{Failure: &FailureTrace{Kind: w.Error.Kind, Message: w.Error.Message}}
		return nil
	}

	if w.Returned == nil || w.Effects == nil || w.Time == nil {
		return errors.New("decode trace: success trace needs returned, effects and time")
	}
	var returned ir.Value
	if !bytes.Equal(bytes.TrimSpace(w.Returned), []byte("null")) {
		v, err := ir.UnmarshalValue(w.Returned)
		if err != nil {
			return fmt.Errorf("decode trace returned: %w", err)
		}
		returned = v
	}
	*t = NewSuccessTrace(returned, w.Effects.Events, w.Time.Tick)
	return nil
}

// Bytes returns the canonical encoding, panicking on an empty trace.
func (t Trace) Bytes() []byte {
	b, err := t.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return b
}

// Equal reports whether two traces encode to identical bytes.
func (t Trace) Equal(other Trace) bool {
	a, errA := t.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Digest returns the trace digest used in run listings.
func (t Trace) Digest() string {
	return ir.TraceDigest(t.Bytes())
}

func (t Trace) String() string {
	b, err := t.MarshalJSON()
	if err != nil {
		return "<empty trace>"
	}
	return string(b)
}
