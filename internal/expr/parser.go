package expr

import (
	"fmt"

	"github.com/roach88/dustrun/internal/ir"
)

// Expr is a parsed expression together with its source text.
type Expr struct {
	Src  string
	Root Node
}

// String returns the original source.
func (e *Expr) String() string { return e.Src }

var (
	mulOps = map[string]bool{"Mul": true, "Div": true}
	addOps = map[string]bool{"Add": true, "Sub": true}
	cmpOps = map[string]bool{"Eq": true, "Ne": true, "Lt": true, "Le": true, "Gt": true, "Ge": true}
)

// Parse parses src into an Expr.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return &Expr{Src: src, Root: root}, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, &SyntaxError{Pos: t.pos, Message: fmt.Sprintf("expected %s, got %s", kind, describe(t))}
	}
	return t, nil
}

func (p *parser) unexpected(t token) error {
	return &SyntaxError{Pos: t.pos, Message: fmt.Sprintf("unexpected %s", describe(t))}
}

func describe(t token) string {
	if t.kind == tokIdent {
		return fmt.Sprintf("identifier %q", t.text)
	}
	return t.kind.String()
}

// peekOp returns the operator word at the cursor if it is in ops.
func (p *parser) peekOp(ops map[string]bool) (string, bool) {
	t := p.peek()
	if t.kind == tokIdent && ops[t.text] {
		return t.text, true
	}
	return "", false
}

func (p *parser) parseOr() (Node, error) {
	return p.parseLeftAssoc(map[string]bool{"Or": true}, p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseLeftAssoc(map[string]bool{"And": true}, p.parseCmp)
}

func (p *parser) parseCmp() (Node, error) {
	return p.parseLeftAssoc(cmpOps, p.parseAdd)
}

func (p *parser) parseAdd() (Node, error) {
	return p.parseLeftAssoc(addOps, p.parseMul)
}

func (p *parser) parseMul() (Node, error) {
	return p.parseLeftAssoc(mulOps, p.parseUnary)
}

func (p *parser) parseLeftAssoc(ops map[string]bool, operand func() (Node, error)) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp(ops)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	switch {
	case t.kind == tokMinus:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: "Neg", X: x}, nil
	case t.kind == tokIdent && t.text == "Not":
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: "Not", X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokDot {
		p.next()
		name, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		x = Select{X: x, Name: name.text}
	}
	return x, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		return Lit{Value: ir.Int(t.num)}, nil
	case tokString:
		return Lit{Value: ir.String(t.text)}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		switch t.text {
		case "true":
			return Lit{Value: ir.Bool(true)}, nil
		case "false":
			return Lit{Value: ir.Bool(false)}, nil
		case "unit":
			return Lit{Value: ir.Unit{}}, nil
		}
		if isOperatorWord(t.text) {
			return nil, &SyntaxError{Pos: t.pos, Message: fmt.Sprintf("operator %s is missing its left operand", t.text)}
		}
		if p.peek().kind == tokLBrace {
			return p.parseStructLit(t.text)
		}
		return Ident{Name: t.text}, nil
	default:
		return nil, p.unexpected(t)
	}
}

func (p *parser) parseStructLit(ty string) (Node, error) {
	p.next() // {
	lit := StructLit{Ty: ty}
	seen := make(map[string]bool)
	for p.peek().kind != tokRBrace {
		name, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if seen[name.text] {
			return nil, &SyntaxError{Pos: name.pos, Message: fmt.Sprintf("duplicate field %q", name.text)}
		}
		seen[name.text] = true
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		lit.Fields = append(lit.Fields, FieldInit{Name: name.text, Value: v})
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return lit, nil
}

func isOperatorWord(s string) bool {
	return mulOps[s] || addOps[s] || cmpOps[s] || s == "And" || s == "Or"
}

// FreeVars returns the binding names e reads, in first-occurrence order.
// Struct type names and field names are not bindings.
func (e *Expr) FreeVars() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch x := n.(type) {
		case Ident:
			if !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case Unary:
			walk(x.X)
		case Binary:
			walk(x.L)
			walk(x.R)
		case StructLit:
			for _, f := range x.Fields {
				walk(f.Value)
			}
		case Select:
			walk(x.X)
		case Lit:
		}
	}
	walk(e.Root)
	return out
}
