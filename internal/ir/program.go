package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Regime identifies which part of the machine owns a statement.
type Regime string

const (
	// RegimeK is classical deterministic execution.
	RegimeK Regime = "K"
	// RegimeQ is linear resource tracking.
	RegimeQ Regime = "Q"
	// RegimePhi is global admissibility; resolved once, never stepped.
	RegimePhi Regime = "Φ"
)

// Op names a statement variant. Each Op belongs to exactly one Regime.
type Op string

const (
	OpLet    Op = "let"
	OpEffect Op = "effect"
	OpAssert Op = "assert"
	OpProve  Op = "prove"
	OpReturn Op = "return"
	OpEnter  Op = "enter"
	OpLeave  Op = "leave"

	OpAlloc   Op = "alloc"
	OpUse     Op = "use"
	OpMeasure Op = "measure"
	OpDealloc Op = "dealloc"
	OpMove    Op = "move"

	OpConstrain Op = "constrain"
)

// opRegime is the fixed regime ownership table. Statement regime is set at
// author time and never changes at runtime.
var opRegime = map[Op]Regime{
	OpLet:       RegimeK,
	OpEffect:    RegimeK,
	OpAssert:    RegimeK,
	OpProve:     RegimeK,
	OpReturn:    RegimeK,
	OpEnter:     RegimeK,
	OpLeave:     RegimeK,
	OpAlloc:     RegimeQ,
	OpUse:       RegimeQ,
	OpMeasure:   RegimeQ,
	OpDealloc:   RegimeQ,
	OpMove:      RegimeQ,
	OpConstrain: RegimePhi,
}

// Program is a validated DIR program: declarations plus an ordered body.
type Program struct {
	Name   string       `json:"name"`
	Shapes []Shape      `json:"shapes,omitempty"`
	Vars   []Var        `json:"vars,omitempty"`
	Uses   []Commitment `json:"uses,omitempty"`
	Body   Body         `json:"body"`
}

// Shape declares a struct type and the order of its fields.
type Shape struct {
	Name   string       `json:"name"`
	Fields []ShapeField `json:"fields,omitempty"`
}

// ShapeField is one declared struct field. Type is Int, Bool, String, Unit,
// another shape name, or empty for any value.
type ShapeField struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Var is a Φ-declared variable with a finite domain.
type Var struct {
	Name   string `json:"name"`
	Domain Domain `json:"domain"`
}

// DomainKind selects how a Var's candidate values are enumerated.
type DomainKind string

const (
	DomainInt  DomainKind = "int"  // inclusive range [Min, Max]
	DomainBool DomainKind = "bool" // false, true
	DomainEnum DomainKind = "enum" // explicit Values, in order
)

// MaxDomainSize bounds the number of candidates a single Var may have.
const MaxDomainSize = 1 << 16

// Domain is a finite, ordered set of candidate values.
type Domain struct {
	Kind   DomainKind `json:"kind"`
	Min    int64      `json:"min,omitempty"`
	Max    int64      `json:"max,omitempty"`
	Values ValueList  `json:"values,omitempty"`
}

// Size returns the number of candidates, or -1 for an unknown kind.
func (d Domain) Size() int64 {
	switch d.Kind {
	case DomainInt:
		if d.Max < d.Min {
			return 0
		}
		return d.Max - d.Min + 1
	case DomainBool:
		return 2
	case DomainEnum:
		return int64(len(d.Values))
	default:
		return -1
	}
}

// Enumerate returns candidates in search order.
func (d Domain) Enumerate() []Value {
	switch d.Kind {
	case DomainInt:
		if d.Max < d.Min {
			return nil
		}
		out := make([]Value, 0, d.Size())
		for n := d.Min; ; n++ {
			out = append(out, Int(n))
			if n == d.Max {
				break
			}
		}
		return out
	case DomainBool:
		return []Value{Bool(false), Bool(true)}
	case DomainEnum:
		return append([]Value(nil), d.Values...)
	default:
		return nil
	}
}

// ResourceQPU is the only resource pool Q allocations draw from.
const ResourceQPU = "qpu"

// Commitment bounds a resource the program promises not to exceed.
type Commitment struct {
	Resource string `json:"resource"`
	Capacity int    `json:"capacity"`
}

// Shape returns the declared shape with the given name.
func (p *Program) Shape(name string) (Shape, bool) {
	for _, s := range p.Shapes {
		if s.Name == name {
			return s, true
		}
	}
	return Shape{}, false
}

// EffectKinds returns every effect kind the body can produce, in order of
// first appearance.
func (p *Program) EffectKinds() []string {
	var kinds []string
	seen := make(map[string]bool)
	for _, s := range p.Body {
		var k string
		switch st := s.(type) {
		case Effect:
			k = st.Kind
		case Alloc:
			k = st.Effect
		case Use:
			k = st.Effect
		case Measure:
			k = st.Effect
		case Dealloc:
			k = st.Effect
		case Move:
			k = st.Effect
		}
		if k != "" && !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Stmt is a sealed interface over DIR statements.
// Dispatch over statements is always an exhaustive type switch.
type Stmt interface {
	stmt()
	Op() Op
	Regime() Regime
}

// Let binds the value of Expr to Name in the current scope.
type Let struct {
	Name string
	Expr string
}

// Effect appends an effect of Kind with the rendered Payload expression.
type Effect struct {
	Kind    string
	Payload string
}

// Assert faults the run if Pred does not evaluate to true.
type Assert struct {
	Pred string
}

// Prove checks the predicate From and binds Name to a Unit proof token.
type Prove struct {
	Name string
	From string
}

// Return ends stepping with the value of Expr (Unit when empty).
type Return struct {
	Expr string
}

// Enter opens a lexical scope.
type Enter struct{}

// Leave closes the innermost scope, releasing its bindings in reverse order.
type Leave struct{}

// DefaultResourceType is the type of an Alloc that names none.
const DefaultResourceType = "QBit"

// Alloc creates a resource handle of Type owned by Name.
type Alloc struct {
	Name   string
	Type   string // resource type; empty means DefaultResourceType
	Effect string // optional effect kind
}

// ResourceType returns the declared type, or DefaultResourceType.
func (a Alloc) ResourceType() string {
	if a.Type == "" {
		return DefaultResourceType
	}
	return a.Type
}

// Use applies Gate to the handle owned by Name.
type Use struct {
	Name   string
	Gate   string
	Effect string
}

// Measure retires the handle owned by Name and binds the outcome to Into.
type Measure struct {
	Name   string
	Into   string
	Effect string
}

// Dealloc retires the handle owned by Name without producing a value.
type Dealloc struct {
	Name   string
	Effect string
}

// Move transfers ownership of a handle from Name to Into.
type Move struct {
	Name   string
	Into   string
	Effect string
}

// Constrain declares a predicate every admissible execution satisfies.
type Constrain struct {
	Pred string
}

func (Let) stmt()       {}
func (Effect) stmt()    {}
func (Assert) stmt()    {}
func (Prove) stmt()     {}
func (Return) stmt()    {}
func (Enter) stmt()     {}
func (Leave) stmt()     {}
func (Alloc) stmt()     {}
func (Use) stmt()       {}
func (Measure) stmt()   {}
func (Dealloc) stmt()   {}
func (Move) stmt()      {}
func (Constrain) stmt() {}

func (Let) Op() Op       { return OpLet }
func (Effect) Op() Op    { return OpEffect }
func (Assert) Op() Op    { return OpAssert }
func (Prove) Op() Op     { return OpProve }
func (Return) Op() Op    { return OpReturn }
func (Enter) Op() Op     { return OpEnter }
func (Leave) Op() Op     { return OpLeave }
func (Alloc) Op() Op     { return OpAlloc }
func (Use) Op() Op       { return OpUse }
func (Measure) Op() Op   { return OpMeasure }
func (Dealloc) Op() Op   { return OpDealloc }
func (Move) Op() Op      { return OpMove }
func (Constrain) Op() Op { return OpConstrain }

func (s Let) Regime() Regime       { return opRegime[s.Op()] }
func (s Effect) Regime() Regime    { return opRegime[s.Op()] }
func (s Assert) Regime() Regime    { return opRegime[s.Op()] }
func (s Prove) Regime() Regime     { return opRegime[s.Op()] }
func (s Return) Regime() Regime    { return opRegime[s.Op()] }
func (s Enter) Regime() Regime     { return opRegime[s.Op()] }
func (s Leave) Regime() Regime     { return opRegime[s.Op()] }
func (s Alloc) Regime() Regime     { return opRegime[s.Op()] }
func (s Use) Regime() Regime       { return opRegime[s.Op()] }
func (s Measure) Regime() Regime   { return opRegime[s.Op()] }
func (s Dealloc) Regime() Regime   { return opRegime[s.Op()] }
func (s Move) Regime() Regime      { return opRegime[s.Op()] }
func (s Constrain) Regime() Regime { return opRegime[s.Op()] }

// Body is the ordered statement list of a Program.
type Body []Stmt

// stmtJSON is the flat wire form of a statement:
//
//	{"regime":"K","op":"effect","kind":"emit","payload":"\"Hello\""}
type stmtJSON struct {
	Regime  Regime `json:"regime"`
	Op      Op     `json:"op"`
	Name    string `json:"name,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Payload string `json:"payload,omitempty"`
	Pred    string `json:"pred,omitempty"`
	From    string `json:"from,omitempty"`
	Type    string `json:"type,omitempty"`
	Gate    string `json:"gate,omitempty"`
	Into    string `json:"into,omitempty"`
	Effect  string `json:"effect,omitempty"`
}

// MarshalJSON implements json.Marshaler for Body. An empty body encodes as [].
func (b Body) MarshalJSON() ([]byte, error) {
	out := make([]stmtJSON, len(b))
	for i, s := range b {
		w, err := toWire(s)
		if err != nil {
			return nil, fmt.Errorf("body[%d]: %w", i, err)
		}
		out[i] = w
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler for Body.
// Rejects unknown keys, unknown ops, regime tags that disagree with the op,
// and fields that do not belong to the op.
func (b *Body) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Body, len(raw))
	for i, r := range raw {
		var w stmtJSON
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return fmt.Errorf("body[%d]: %w", i, err)
		}
		s, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("body[%d]: %w", i, err)
		}
		out[i] = s
	}
	*b = out
	return nil
}

func toWire(s Stmt) (stmtJSON, error) {
	w := stmtJSON{Regime: s.Regime(), Op: s.Op()}
	switch st := s.(type) {
	case Let:
		w.Name, w.Expr = st.Name, st.Expr
	case Effect:
		w.Kind, w.Payload = st.Kind, st.Payload
	case Assert:
		w.Pred = st.Pred
	case Prove:
		w.Name, w.From = st.Name, st.From
	case Return:
		w.Expr = st.Expr
	case Enter, Leave:
	case Alloc:
		w.Name, w.Type, w.Effect = st.Name, st.Type, st.Effect
	case Use:
		w.Name, w.Gate, w.Effect = st.Name, st.Gate, st.Effect
	case Measure:
		w.Name, w.Into, w.Effect = st.Name, st.Into, st.Effect
	case Dealloc:
		w.Name, w.Effect = st.Name, st.Effect
	case Move:
		w.Name, w.Into, w.Effect = st.Name, st.Into, st.Effect
	case Constrain:
		w.Pred = st.Pred
	default:
		return stmtJSON{}, fmt.Errorf("unknown statement type %T", s)
	}
	return w, nil
}

func fromWire(w stmtJSON) (Stmt, error) {
	want, ok := opRegime[w.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", w.Op)
	}
	regime := w.Regime
	if regime == "Phi" {
		regime = RegimePhi
	}
	if regime != want {
		return nil, fmt.Errorf("op %q belongs to regime %s, tagged %q", w.Op, want, w.Regime)
	}

	set := map[string]string{
		"name": w.Name, "expr": w.Expr, "kind": w.Kind, "payload": w.Payload,
		"pred": w.Pred, "from": w.From, "type": w.Type,
		"gate": w.Gate, "into": w.Into, "effect": w.Effect,
	}
	allow := func(keys ...string) error {
		allowed := make(map[string]bool, len(keys))
		for _, k := range keys {
			allowed[k] = true
		}
		for _, k := range []string{"name", "expr", "kind", "payload", "pred", "from", "type", "gate", "into", "effect"} {
			if set[k] != "" && !allowed[k] {
				return fmt.Errorf("field %q is not valid for op %q", k, w.Op)
			}
		}
		return nil
	}

	var (
		s   Stmt
		err error
	)
	switch w.Op {
	case OpLet:
		s, err = Let{Name: w.Name, Expr: w.Expr}, allow("name", "expr")
	case OpEffect:
		s, err = Effect{Kind: w.Kind, Payload: w.Payload}, allow("kind", "payload")
	case OpAssert:
		s, err = Assert{Pred: w.Pred}, allow("pred")
	case OpProve:
		s, err = Prove{Name: w.Name, From: w.From}, allow("name", "from")
	case OpReturn:
		s, err = Return{Expr: w.Expr}, allow("expr")
	case OpEnter:
		s, err = Enter{}, allow()
	case OpLeave:
		s, err = Leave{}, allow()
	case OpAlloc:
		s, err = Alloc{Name: w.Name, Type: w.Type, Effect: w.Effect}, allow("name", "type", "effect")
	case OpUse:
		s, err = Use{Name: w.Name, Gate: w.Gate, Effect: w.Effect}, allow("name", "gate", "effect")
	case OpMeasure:
		s, err = Measure{Name: w.Name, Into: w.Into, Effect: w.Effect}, allow("name", "into", "effect")
	case OpDealloc:
		s, err = Dealloc{Name: w.Name, Effect: w.Effect}, allow("name", "effect")
	case OpMove:
		s, err = Move{Name: w.Name, Into: w.Into, Effect: w.Effect}, allow("name", "into", "effect")
	case OpConstrain:
		s, err = Constrain{Pred: w.Pred}, allow("pred")
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
