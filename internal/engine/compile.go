package engine

import (
	"fmt"

	"github.com/roach88/dustrun/internal/expr"
	"github.com/roach88/dustrun/internal/ir"
)

// plan is a program prepared for execution: every expression parsed once,
// every constraint linked to the vars it mentions.
type plan struct {
	prog        *ir.Program
	exprs       map[int]*expr.Expr // body index -> primary expression
	constraints []constraint
	eval        *expr.Evaluator
}

// constraint is one Φ predicate with its free vars resolved to indices
// into prog.Vars. vars is in first-occurrence order.
type constraint struct {
	index int // position among constraints, in declaration order
	pred  *expr.Expr
	vars  []int
}

// compile validates prog and parses its expressions. Every problem found
// is reported; the result is a PreconditionError, never a Fault.
func compile(prog *ir.Program) (*plan, error) {
	if prog == nil {
		return nil, NewPreconditionError("program is nil")
	}

	var problems []string
	for _, ve := range prog.Validate() {
		problems = append(problems, ve.Error())
	}

	p := &plan{
		prog:  prog,
		exprs: make(map[int]*expr.Expr),
		eval:  expr.NewEvaluator(prog.Shapes),
	}

	varIndex := make(map[string]int, len(prog.Vars))
	for i, v := range prog.Vars {
		varIndex[v.Name] = i
	}

	parse := func(i int, key, src string) *expr.Expr {
		e, err := expr.Parse(src)
		if err != nil {
			problems = append(problems, fmt.Sprintf("body[%d].%s: %v", i, key, err))
			return nil
		}
		return e
	}

	for i, s := range prog.Body {
		switch st := s.(type) {
		case ir.Let:
			p.exprs[i] = parse(i, "expr", st.Expr)
		case ir.Effect:
			p.exprs[i] = parse(i, "payload", st.Payload)
		case ir.Assert:
			p.exprs[i] = parse(i, "pred", st.Pred)
		case ir.Prove:
			p.exprs[i] = parse(i, "from", st.From)
		case ir.Return:
			if st.Expr != "" {
				p.exprs[i] = parse(i, "expr", st.Expr)
			}
		case ir.Constrain:
			e := parse(i, "pred", st.Pred)
			if e == nil {
				continue
			}
			c := constraint{index: len(p.constraints), pred: e}
			for _, name := range e.FreeVars() {
				idx, ok := varIndex[name]
				if !ok {
					problems = append(problems, fmt.Sprintf("body[%d].pred: undeclared variable %q", i, name))
					continue
				}
				c.vars = append(c.vars, idx)
			}
			p.constraints = append(p.constraints, c)
		}
	}

	if len(problems) > 0 {
		return nil, &PreconditionError{Problems: problems}
	}
	return p, nil
}

// Check reports every structural problem that would stop prog from
// running: validation failures, expression syntax errors and constraints
// over undeclared variables. It returns nil or a *PreconditionError.
func Check(prog *ir.Program) error {
	_, err := compile(prog)
	return err
}
