package testutil

import (
	"github.com/roach88/dustrun/internal/ir"
)

// ProgramBuilder assembles DIR programs for tests.
//
//	prog := testutil.NewProgram("hello").
//		Stmt(ir.Effect{Kind: "emit", Payload: `"Hello"`}).
//		Build()
type ProgramBuilder struct {
	p ir.Program
}

// NewProgram starts a program with the given name and an empty body.
func NewProgram(name string) *ProgramBuilder {
	return &ProgramBuilder{p: ir.Program{Name: name, Body: ir.Body{}}}
}

// Shape declares a struct shape with untyped fields.
func (b *ProgramBuilder) Shape(name string, fields ...string) *ProgramBuilder {
	s := ir.Shape{Name: name}
	for _, f := range fields {
		s.Fields = append(s.Fields, ir.ShapeField{Name: f})
	}
	b.p.Shapes = append(b.p.Shapes, s)
	return b
}

// TypedShape declares a struct shape with explicit field types.
func (b *ProgramBuilder) TypedShape(name string, fields ...ir.ShapeField) *ProgramBuilder {
	b.p.Shapes = append(b.p.Shapes, ir.Shape{Name: name, Fields: fields})
	return b
}

// IntVar declares a var ranging over [lo, hi].
func (b *ProgramBuilder) IntVar(name string, lo, hi int64) *ProgramBuilder {
	b.p.Vars = append(b.p.Vars, ir.Var{Name: name, Domain: ir.Domain{Kind: ir.DomainInt, Min: lo, Max: hi}})
	return b
}

// BoolVar declares a boolean var.
func (b *ProgramBuilder) BoolVar(name string) *ProgramBuilder {
	b.p.Vars = append(b.p.Vars, ir.Var{Name: name, Domain: ir.Domain{Kind: ir.DomainBool}})
	return b
}

// EnumVar declares a var over an explicit list of values.
func (b *ProgramBuilder) EnumVar(name string, values ...ir.Value) *ProgramBuilder {
	b.p.Vars = append(b.p.Vars, ir.Var{Name: name, Domain: ir.Domain{Kind: ir.DomainEnum, Values: values}})
	return b
}

// Capacity commits the program to at most n live qpu handles.
func (b *ProgramBuilder) Capacity(n int) *ProgramBuilder {
	b.p.Uses = append(b.p.Uses, ir.Commitment{Resource: ir.ResourceQPU, Capacity: n})
	return b
}

// Stmt appends statements to the body.
func (b *ProgramBuilder) Stmt(stmts ...ir.Stmt) *ProgramBuilder {
	b.p.Body = append(b.p.Body, stmts...)
	return b
}

// Build returns the assembled program. The builder may be reused; each
// Build returns an independent copy of the body.
func (b *ProgramBuilder) Build() *ir.Program {
	p := b.p
	p.Body = append(ir.Body{}, b.p.Body...)
	return &p
}

// HelloProgram emits "Hello" once and returns nothing.
func HelloProgram() *ir.Program {
	return NewProgram("hello").
		Stmt(ir.Effect{Kind: "emit", Payload: `"Hello"`}).
		Build()
}

// LeakProgram allocates a resource and never resolves it.
func LeakProgram() *ir.Program {
	return NewProgram("leak").
		Stmt(ir.Alloc{Name: "q"}).
		Build()
}

// UnsatisfiableProgram declares constraints no assignment satisfies, and
// an effect that must never run.
func UnsatisfiableProgram() *ir.Program {
	return NewProgram("unsat").
		IntVar("x", 0, 3).
		Stmt(
			ir.Constrain{Pred: "x Gt 5"},
			ir.Effect{Kind: "emit", Payload: `"unreachable"`},
		).
		Build()
}

// PointProgram builds and returns a Point{x, y} struct.
func PointProgram() *ir.Program {
	return NewProgram("point").
		TypedShape("Point", ir.ShapeField{Name: "x", Type: "Int"}, ir.ShapeField{Name: "y", Type: "Int"}).
		Stmt(
			ir.Let{Name: "p", Expr: "Point{x: 1, y: 2}"},
			ir.Return{Expr: "p"},
		).
		Build()
}
