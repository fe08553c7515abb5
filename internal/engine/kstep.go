package engine

import (
	"context"
	"errors"

	"github.com/roach88/dustrun/internal/expr"
	"github.com/roach88/dustrun/internal/ir"
)

// runtimeFault turns an evaluation error into a RuntimeFault. Anything
// else is passed through untouched.
func runtimeFault(err error) error {
	var ee *expr.EvalError
	if errors.As(err, &ee) {
		return NewFault(KindRuntimeFault, "%s", ee.Message)
	}
	return err
}

// stepK executes one K statement. It reports halt when the statement
// ends stepping early (return).
func (m *Machine) stepK(ctx context.Context, s ir.Stmt) (halt bool, err error) {
	e := m.plan.exprs[m.pc]

	switch st := s.(type) {
	case ir.Let:
		v, err := m.plan.eval.Eval(e, m.env)
		if err != nil {
			return false, runtimeFault(err)
		}
		m.env.Bind(st.Name, v)
		return false, nil

	case ir.Effect:
		v, err := m.plan.eval.Eval(e, m.env)
		if err != nil {
			return false, runtimeFault(err)
		}
		return false, m.rec.Record(ctx, EffectEvent{Kind: st.Kind, Payload: ir.Render(v)})

	case ir.Assert:
		ok, err := m.plan.eval.EvalBool(e, m.env)
		if err != nil {
			return false, runtimeFault(err)
		}
		if !ok {
			return false, NewFault(KindRuntimeFault, "assertion failed: %s", st.Pred)
		}
		return false, nil

	case ir.Prove:
		ok, err := m.plan.eval.EvalBool(e, m.env)
		if err != nil {
			return false, runtimeFault(err)
		}
		if !ok {
			return false, NewFault(KindRuntimeFault, "proof failed: %s", st.From)
		}
		m.env.Bind(st.Name, ir.Unit{})
		return false, nil

	case ir.Return:
		if e == nil {
			m.returned = ir.Unit{}
			return true, nil
		}
		v, err := m.plan.eval.Eval(e, m.env)
		if err != nil {
			return false, runtimeFault(err)
		}
		m.returned = v
		return true, nil

	case ir.Enter:
		m.env.Push()
		return false, nil

	case ir.Leave:
		return false, m.env.Pop()

	default:
		return false, NewFault(KindRuntimeFault, "statement %s is not a K statement", s.Op())
	}
}
