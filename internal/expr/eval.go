package expr

import (
	"math"

	"github.com/roach88/dustrun/internal/ir"
)

// Env resolves binding names during evaluation.
type Env interface {
	Lookup(name string) (ir.Value, bool)
}

// Bindings is a plain map Env.
type Bindings map[string]ir.Value

// Lookup implements Env.
func (b Bindings) Lookup(name string) (ir.Value, bool) {
	v, ok := b[name]
	return v, ok
}

// Evaluator evaluates parsed expressions against declared struct shapes.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	shapes map[string]ir.Shape
}

// NewEvaluator creates an evaluator that constructs structs from shapes.
func NewEvaluator(shapes []ir.Shape) *Evaluator {
	m := make(map[string]ir.Shape, len(shapes))
	for _, s := range shapes {
		m[s.Name] = s
	}
	return &Evaluator{shapes: m}
}

// Eval evaluates e under env. Errors are *EvalError.
func (ev *Evaluator) Eval(e *Expr, env Env) (ir.Value, error) {
	return ev.eval(e.Root, env)
}

// EvalBool evaluates e and requires a Bool result.
func (ev *Evaluator) EvalBool(e *Expr, env Env) (bool, error) {
	v, err := ev.Eval(e, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(ir.Bool)
	if !ok {
		return false, evalErrorf("predicate must be Bool, got %s", v.TypeName())
	}
	return bool(b), nil
}

func (ev *Evaluator) eval(n Node, env Env) (ir.Value, error) {
	switch x := n.(type) {
	case Lit:
		return x.Value, nil
	case Ident:
		v, ok := env.Lookup(x.Name)
		if !ok {
			return nil, evalErrorf("unknown identifier: %s", x.Name)
		}
		return v, nil
	case Unary:
		return ev.evalUnary(x, env)
	case Binary:
		return ev.evalBinary(x, env)
	case StructLit:
		return ev.evalStruct(x, env)
	case Select:
		v, err := ev.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		s, ok := v.(ir.Struct)
		if !ok {
			return nil, evalErrorf("field access requires Struct operand, got %s", v.TypeName())
		}
		f, ok := s.Get(x.Name)
		if !ok {
			return nil, evalErrorf("unknown field: %s.%s", s.Ty, x.Name)
		}
		return f, nil
	default:
		return nil, evalErrorf("unknown expression node %T", n)
	}
}

func (ev *Evaluator) evalUnary(x Unary, env Env) (ir.Value, error) {
	v, err := ev.eval(x.X, env)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "Not":
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, evalErrorf("Not requires Bool operand")
		}
		return !b, nil
	case "Neg":
		n, ok := v.(ir.Int)
		if !ok {
			return nil, evalErrorf("negation requires Int operand")
		}
		if n == math.MinInt64 {
			return nil, evalErrorf("integer overflow")
		}
		return -n, nil
	default:
		return nil, evalErrorf("unknown unary operator: %s", x.Op)
	}
}

func (ev *Evaluator) evalBinary(x Binary, env Env) (ir.Value, error) {
	l, err := ev.eval(x.L, env)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(x.R, env)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case "Eq":
		return ir.Bool(ir.Equal(l, r)), nil
	case "Ne":
		return ir.Bool(!ir.Equal(l, r)), nil
	case "And", "Or":
		lb, lok := l.(ir.Bool)
		rb, rok := r.(ir.Bool)
		if !lok || !rok {
			return nil, evalErrorf("%s requires Bool operands", x.Op)
		}
		if x.Op == "And" {
			return lb && rb, nil
		}
		return lb || rb, nil
	}

	a, aok := l.(ir.Int)
	b, bok := r.(ir.Int)
	if !aok || !bok {
		return nil, evalErrorf("%s requires Int operands", x.Op)
	}
	switch x.Op {
	case "Lt":
		return ir.Bool(a < b), nil
	case "Le":
		return ir.Bool(a <= b), nil
	case "Gt":
		return ir.Bool(a > b), nil
	case "Ge":
		return ir.Bool(a >= b), nil
	case "Add":
		s := a + b
		if (s > a) != (b > 0) {
			return nil, evalErrorf("integer overflow")
		}
		return s, nil
	case "Sub":
		d := a - b
		if (d < a) != (b > 0) {
			return nil, evalErrorf("integer overflow")
		}
		return d, nil
	case "Mul":
		if a == 0 || b == 0 {
			return ir.Int(0), nil
		}
		p := a * b
		if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, evalErrorf("integer overflow")
		}
		return p, nil
	case "Div":
		if b == 0 {
			return nil, evalErrorf("division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, evalErrorf("integer overflow")
		}
		return a / b, nil
	default:
		return nil, evalErrorf("unknown operator: %s", x.Op)
	}
}

func (ev *Evaluator) evalStruct(x StructLit, env Env) (ir.Value, error) {
	shape, ok := ev.shapes[x.Ty]
	if !ok {
		return nil, evalErrorf("unknown shape: %s", x.Ty)
	}

	given := make(map[string]Node, len(x.Fields))
	for _, f := range x.Fields {
		given[f.Name] = f.Value
	}
	for _, f := range x.Fields {
		if !shapeHas(shape, f.Name) {
			return nil, evalErrorf("unknown field: %s.%s", x.Ty, f.Name)
		}
	}

	// Evaluate in declaration order so the first fault is the same no
	// matter how the literal orders its fields.
	fields := make([]ir.Field, 0, len(shape.Fields))
	for _, decl := range shape.Fields {
		n, ok := given[decl.Name]
		if !ok {
			return nil, evalErrorf("missing field: %s.%s", x.Ty, decl.Name)
		}
		v, err := ev.eval(n, env)
		if err != nil {
			return nil, err
		}
		if !typeMatches(decl.Type, v) {
			return nil, evalErrorf("field %s.%s requires %s, got %s", x.Ty, decl.Name, decl.Type, typeOf(v))
		}
		fields = append(fields, ir.F(decl.Name, v))
	}
	return ir.Struct{Ty: x.Ty, Fields: fields}, nil
}

func shapeHas(s ir.Shape, name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// typeOf names v's type; structs are named by their shape.
func typeOf(v ir.Value) string {
	if s, ok := v.(ir.Struct); ok {
		return s.Ty
	}
	return v.TypeName()
}

func typeMatches(declared string, v ir.Value) bool {
	return declared == "" || declared == typeOf(v)
}
