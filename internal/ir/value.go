package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface representing runtime values.
// Only Int, Bool, String, Unit and Struct implement this.
// NO Float - floats are forbidden (breaks determinism).
type Value interface {
	value() // Sealed - only these types implement it

	// TypeName returns the variant name used in encodings and diagnostics.
	TypeName() string
}

// Int is a signed 64-bit integer value.
type Int int64

func (Int) value()            {}
func (Int) TypeName() string { return "Int" }

// Bool is a boolean value.
type Bool bool

func (Bool) value()            {}
func (Bool) TypeName() string { return "Bool" }

// String is a UTF-8 string value.
type String string

func (String) value()            {}
func (String) TypeName() string { return "String" }

// Unit is the empty value.
type Unit struct{}

func (Unit) value()            {}
func (Unit) TypeName() string { return "Unit" }

// Field is a single named member of a Struct.
type Field struct {
	Name  string
	Value Value
}

// F is a shorthand for Field for ergonomic construction.
// Example: NewStruct("Point", F("x", Int(1)), F("y", Int(2)))
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Struct is a named record with ordered fields.
// Field order is the declaration order and is significant for
// equality and encoding.
type Struct struct {
	Ty     string
	Fields []Field
}

func (Struct) value()            {}
func (Struct) TypeName() string { return "Struct" }

// NewStruct creates a Struct value, keeping fields in the given order.
func NewStruct(ty string, fields ...Field) Struct {
	return Struct{Ty: ty, Fields: fields}
}

// Get returns the value of the named field.
func (s Struct) Get(name string) (Value, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Equal reports structural equality. Struct fields must match in name,
// value and order.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Struct:
		bv, ok := b.(Struct)
		if !ok || av.Ty != bv.Ty || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Name != bv.Fields[i].Name {
				return false
			}
			if !Equal(av.Fields[i].Value, bv.Fields[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Render produces the deterministic payload string for an effect.
//
//   - String renders raw (no quotes)
//   - Int and Bool render in their literal form
//   - Unit renders as "unit"
//   - Struct renders as Ty{k:v,...} with nested strings quoted
func Render(v Value) string {
	var b strings.Builder
	render(&b, v, false)
	return b.String()
}

func render(b *strings.Builder, v Value, nested bool) {
	switch val := v.(type) {
	case String:
		if nested {
			b.WriteString(strconv.Quote(string(val)))
		} else {
			b.WriteString(string(val))
		}
	case Int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case Unit:
		b.WriteString("unit")
	case Struct:
		b.WriteString(val.Ty)
		b.WriteByte('{')
		for i, f := range val.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			render(b, f.Value, true)
		}
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "<%T>", v)
	}
}
