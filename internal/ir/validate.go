package ir

import (
	"fmt"
	"regexp"
)

// Validation error codes (E100-E199)
const (
	ErrProgramName       = "E101" // program name is required
	ErrInvalidIdentifier = "E102" // binding, shape, field or var name is not an identifier
	ErrInvalidEffectKind = "E103" // effect kind is not a lowercase identifier
	ErrDuplicateName     = "E104" // duplicate shape, field or var name
	ErrInvalidDomain     = "E105" // empty, oversized or malformed domain
	ErrInvalidCommitment = "E106" // unknown resource or negative capacity
	ErrMissingField      = "E107" // required statement field is empty
	ErrUnknownFieldType  = "E108" // shape field type is neither a base type nor a shape
	ErrUnknownStatement  = "E109" // statement variant not recognised
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	kindPattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// reservedWords cannot be used as binding names; the expression
// language gives them fixed meaning.
var reservedWords = map[string]bool{
	"true": true, "false": true, "unit": true,
	"Add": true, "Sub": true, "Mul": true, "Div": true,
	"Eq": true, "Ne": true, "Lt": true, "Le": true, "Gt": true, "Ge": true,
	"And": true, "Or": true, "Not": true,
}

var baseTypes = map[string]bool{"Int": true, "Bool": true, "String": true, "Unit": true}

// ValidationError represents a static DIR validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsIdentifier reports whether s may name a binding, var, shape or field.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s) && !reservedWords[s]
}

// IsEffectKind reports whether s is a valid effect kind.
func IsEffectKind(s string) bool {
	return kindPattern.MatchString(s)
}

// Validate checks the structural rules of a program.
// Returns all errors found (does not fail-fast). Expression syntax is
// checked separately when the engine compiles the program.
func (p *Program) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if p.Name == "" {
		add("name", ErrProgramName, "program name is required")
	}

	shapes := make(map[string]bool)
	for i, s := range p.Shapes {
		field := fmt.Sprintf("shapes[%d]", i)
		if !IsIdentifier(s.Name) {
			add(field+".name", ErrInvalidIdentifier, "invalid shape name %q", s.Name)
		}
		if shapes[s.Name] || baseTypes[s.Name] {
			add(field+".name", ErrDuplicateName, "duplicate shape %q", s.Name)
		}
		shapes[s.Name] = true
	}
	for i, s := range p.Shapes {
		seen := make(map[string]bool)
		for j, f := range s.Fields {
			field := fmt.Sprintf("shapes[%d].fields[%d]", i, j)
			if !IsIdentifier(f.Name) {
				add(field+".name", ErrInvalidIdentifier, "invalid field name %q", f.Name)
			}
			if seen[f.Name] {
				add(field+".name", ErrDuplicateName, "duplicate field %q in shape %q", f.Name, s.Name)
			}
			seen[f.Name] = true
			if f.Type != "" && !baseTypes[f.Type] && !shapes[f.Type] {
				add(field+".type", ErrUnknownFieldType, "unknown type %q", f.Type)
			}
		}
	}

	vars := make(map[string]bool)
	for i, v := range p.Vars {
		field := fmt.Sprintf("vars[%d]", i)
		if !IsIdentifier(v.Name) {
			add(field+".name", ErrInvalidIdentifier, "invalid var name %q", v.Name)
		}
		if vars[v.Name] {
			add(field+".name", ErrDuplicateName, "duplicate var %q", v.Name)
		}
		vars[v.Name] = true
		errs = append(errs, validateDomain(field+".domain", v.Domain)...)
	}

	resources := make(map[string]bool)
	for i, c := range p.Uses {
		field := fmt.Sprintf("uses[%d]", i)
		if c.Resource != ResourceQPU {
			add(field+".resource", ErrInvalidCommitment, "unknown resource %q", c.Resource)
		}
		if resources[c.Resource] {
			add(field+".resource", ErrDuplicateName, "duplicate commitment for %q", c.Resource)
		}
		resources[c.Resource] = true
		if c.Capacity < 0 {
			add(field+".capacity", ErrInvalidCommitment, "capacity must be non-negative, got %d", c.Capacity)
		}
	}

	for i, s := range p.Body {
		errs = append(errs, validateStmt(fmt.Sprintf("body[%d]", i), s)...)
	}

	return errs
}

func validateDomain(field string, d Domain) []ValidationError {
	bad := func(format string, args ...any) []ValidationError {
		return []ValidationError{{Field: field, Code: ErrInvalidDomain, Message: fmt.Sprintf(format, args...)}}
	}
	switch d.Kind {
	case DomainInt:
		if d.Max < d.Min {
			return bad("empty range [%d, %d]", d.Min, d.Max)
		}
		if len(d.Values) > 0 {
			return bad("int domain takes min/max, not values")
		}
		// Unsigned subtraction gives the true span even when Max-Min overflows int64.
		if uint64(d.Max)-uint64(d.Min) >= MaxDomainSize {
			return bad("domain larger than %d values", MaxDomainSize)
		}
	case DomainBool:
		if d.Min != 0 || d.Max != 0 || len(d.Values) > 0 {
			return bad("bool domain takes no bounds or values")
		}
	case DomainEnum:
		if len(d.Values) == 0 {
			return bad("enum domain needs at least one value")
		}
		if len(d.Values) > MaxDomainSize {
			return bad("domain larger than %d values", MaxDomainSize)
		}
		for i := range d.Values {
			for j := 0; j < i; j++ {
				if Equal(d.Values[i], d.Values[j]) {
					return bad("duplicate value %s", Render(d.Values[i]))
				}
			}
		}
	default:
		return bad("unknown domain kind %q", d.Kind)
	}
	return nil
}

func validateStmt(field string, s Stmt) []ValidationError {
	var errs []ValidationError
	ident := func(name, key string) {
		if name == "" {
			errs = append(errs, ValidationError{Field: field + "." + key, Code: ErrMissingField, Message: key + " is required"})
			return
		}
		if !IsIdentifier(name) {
			errs = append(errs, ValidationError{Field: field + "." + key, Code: ErrInvalidIdentifier, Message: fmt.Sprintf("invalid identifier %q", name)})
		}
	}
	required := func(v, key string) {
		if v == "" {
			errs = append(errs, ValidationError{Field: field + "." + key, Code: ErrMissingField, Message: key + " is required"})
		}
	}
	kind := func(k, key string, optional bool) {
		if k == "" {
			if !optional {
				required(k, key)
			}
			return
		}
		if !IsEffectKind(k) {
			errs = append(errs, ValidationError{Field: field + "." + key, Code: ErrInvalidEffectKind, Message: fmt.Sprintf("invalid effect kind %q", k)})
		}
	}

	switch st := s.(type) {
	case Let:
		ident(st.Name, "name")
		required(st.Expr, "expr")
	case Effect:
		kind(st.Kind, "kind", false)
		required(st.Payload, "payload")
	case Assert:
		required(st.Pred, "pred")
	case Prove:
		ident(st.Name, "name")
		required(st.From, "from")
	case Return, Enter, Leave:
	case Alloc:
		ident(st.Name, "name")
		if st.Type != "" && !IsIdentifier(st.Type) {
			errs = append(errs, ValidationError{Field: field + ".type", Code: ErrInvalidIdentifier, Message: fmt.Sprintf("invalid resource type %q", st.Type)})
		}
		kind(st.Effect, "effect", true)
	case Use:
		ident(st.Name, "name")
		required(st.Gate, "gate")
		kind(st.Effect, "effect", true)
	case Measure:
		ident(st.Name, "name")
		ident(st.Into, "into")
		kind(st.Effect, "effect", true)
	case Dealloc:
		ident(st.Name, "name")
		kind(st.Effect, "effect", true)
	case Move:
		ident(st.Name, "name")
		ident(st.Into, "into")
		kind(st.Effect, "effect", true)
	case Constrain:
		required(st.Pred, "pred")
	default:
		errs = append(errs, ValidationError{Field: field, Code: ErrUnknownStatement, Message: fmt.Sprintf("unknown statement type %T", s)})
	}
	return errs
}
