package engine

import (
	"context"

	"github.com/roach88/dustrun/internal/ir"
)

// stepQ executes one Q statement against the handle arena. When the
// statement names an effect kind, the rendered operation is recorded.
func (m *Machine) stepQ(ctx context.Context, s ir.Stmt) error {
	var (
		payload string
		kind    string
		err     error
	)

	switch st := s.(type) {
	case ir.Alloc:
		kind = st.Effect
		payload, err = m.q.Alloc(st.Name, st.ResourceType())
	case ir.Use:
		kind = st.Effect
		payload, err = m.q.Use(st.Name, st.Gate)
	case ir.Measure:
		kind = st.Effect
		var outcome ir.Value
		outcome, payload, err = m.q.Measure(st.Name)
		if err == nil {
			m.env.Bind(st.Into, outcome)
		}
	case ir.Dealloc:
		kind = st.Effect
		payload, err = m.q.Dealloc(st.Name)
	case ir.Move:
		kind = st.Effect
		payload, err = m.q.Move(st.Name, st.Into)
	default:
		return NewFault(KindRuntimeFault, "statement %s is not a Q statement", s.Op())
	}
	if err != nil {
		return err
	}

	if kind == "" {
		return nil
	}
	return m.rec.Record(ctx, EffectEvent{Kind: kind, Payload: payload})
}
