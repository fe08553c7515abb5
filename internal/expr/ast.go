package expr

import (
	"strconv"
	"strings"

	"github.com/roach88/dustrun/internal/ir"
)

// Node is a sealed interface over parsed expression nodes.
type Node interface {
	node()
	String() string
}

// Lit is a literal value.
type Lit struct {
	Value ir.Value
}

// Ident references a binding by name.
type Ident struct {
	Name string
}

// Unary applies Not or Neg to X.
type Unary struct {
	Op string
	X  Node
}

// Binary applies a word operator to L and R.
type Binary struct {
	Op string
	L  Node
	R  Node
}

// FieldInit is one name: value pair inside a struct literal.
type FieldInit struct {
	Name  string
	Value Node
}

// StructLit constructs a value of a declared shape.
type StructLit struct {
	Ty     string
	Fields []FieldInit
}

// Select reads field Name from the struct produced by X.
type Select struct {
	X    Node
	Name string
}

func (Lit) node()       {}
func (Ident) node()     {}
func (Unary) node()     {}
func (Binary) node()    {}
func (StructLit) node() {}
func (Select) node()    {}

func (n Lit) String() string {
	if s, ok := n.Value.(ir.String); ok {
		return strconv.Quote(string(s))
	}
	return ir.Render(n.Value)
}

func (n Ident) String() string { return n.Name }

func (n Unary) String() string {
	if n.Op == "Neg" {
		return "-" + n.X.String()
	}
	return n.Op + " " + n.X.String()
}

func (n Binary) String() string {
	return "(" + n.L.String() + " " + n.Op + " " + n.R.String() + ")"
}

func (n StructLit) String() string {
	var b strings.Builder
	b.WriteString(n.Ty)
	b.WriteByte('{')
	for i, f := range n.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (n Select) String() string { return n.X.String() + "." + n.Name }
