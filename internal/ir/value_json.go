package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MarshalValue encodes a Value in its tagged form:
//
//	{"Int":n} {"Bool":b} {"String":s} "Unit" {"Struct":{"ty":t,"fields":{...}}}
//
// Struct fields are written in declaration order. The output is byte-stable:
// no whitespace, no HTML escaping.
func MarshalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Int:
		buf.WriteString(`{"Int":`)
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		buf.WriteByte('}')
	case Bool:
		buf.WriteString(`{"Bool":`)
		buf.WriteString(strconv.FormatBool(bool(val)))
		buf.WriteByte('}')
	case String:
		buf.WriteString(`{"String":`)
		if err := WriteJSONString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Unit:
		buf.WriteString(`"Unit"`)
	case Struct:
		buf.WriteString(`{"Struct":{"ty":`)
		if err := WriteJSONString(buf, val.Ty); err != nil {
			return err
		}
		buf.WriteString(`,"fields":{`)
		for i, f := range val.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := WriteJSONString(buf, f.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, f.Value); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		buf.WriteString(`}}}`)
	case nil:
		return errors.New("nil value")
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
	return nil
}

// WriteJSONString writes s as a JSON string literal without HTML escaping.
func WriteJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds trailing newline, remove it
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// MarshalJSON implements json.Marshaler for Int.
func (v Int) MarshalJSON() ([]byte, error) { return MarshalValue(v) }

// MarshalJSON implements json.Marshaler for Bool.
func (v Bool) MarshalJSON() ([]byte, error) { return MarshalValue(v) }

// MarshalJSON implements json.Marshaler for String.
func (v String) MarshalJSON() ([]byte, error) { return MarshalValue(v) }

// MarshalJSON implements json.Marshaler for Unit.
func (v Unit) MarshalJSON() ([]byte, error) { return MarshalValue(v) }

// MarshalJSON implements json.Marshaler for Struct.
func (v Struct) MarshalJSON() ([]byte, error) { return MarshalValue(v) }

// UnmarshalValue decodes a tagged Value. Object key order inside "fields"
// is preserved as the struct's declaration order.
//
// Rejects floats, null, unknown tags, duplicate field names and trailing data.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case string:
		if t == "Unit" {
			return Unit{}, nil
		}
		return nil, fmt.Errorf("unknown value encoding %q", t)
	case json.Delim:
		if t != '{' {
			return nil, fmt.Errorf("unexpected %q, want value object", t)
		}
	default:
		return nil, fmt.Errorf("unexpected token %v, want value", tok)
	}

	tag, err := expectKey(dec)
	if err != nil {
		return nil, err
	}

	var v Value
	switch tag {
	case "Int":
		v, err = decodeInt(dec)
	case "Bool":
		v, err = decodeBool(dec)
	case "String":
		v, err = decodeString(dec)
	case "Struct":
		v, err = decodeStruct(dec)
	default:
		return nil, fmt.Errorf("unknown value tag %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	return v, nil
}

func decodeInt(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	n, ok := tok.(json.Number)
	if !ok {
		return nil, fmt.Errorf("want number, got %v", tok)
	}
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return nil, fmt.Errorf("floats are forbidden: %s", s)
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("number out of int64 range: %s", s)
	}
	return Int(i), nil
}

func decodeBool(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	b, ok := tok.(bool)
	if !ok {
		return nil, fmt.Errorf("want bool, got %v", tok)
	}
	return Bool(b), nil
}

func decodeString(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	s, ok := tok.(string)
	if !ok {
		return nil, fmt.Errorf("want string, got %v", tok)
	}
	return String(s), nil
}

func decodeStruct(dec *json.Decoder) (Value, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		s         Struct
		sawTy     bool
		sawFields bool
	)
	for dec.More() {
		key, err := expectKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "ty":
			if sawTy {
				return nil, errors.New(`duplicate key "ty"`)
			}
			sawTy = true
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			ty, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("ty: want string, got %v", tok)
			}
			s.Ty = ty
		case "fields":
			if sawFields {
				return nil, errors.New(`duplicate key "fields"`)
			}
			sawFields = true
			fields, err := decodeFields(dec)
			if err != nil {
				return nil, err
			}
			s.Fields = fields
		default:
			return nil, fmt.Errorf("unknown struct key %q", key)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if !sawTy || !sawFields {
		return nil, errors.New(`struct requires "ty" and "fields"`)
	}
	return s, nil
}

func decodeFields(dec *json.Decoder) ([]Field, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	fields := []Field{}
	seen := make(map[string]bool)
	for dec.More() {
		name, err := expectKey(dec)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = true
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields = append(fields, F(name, v))
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return fields, nil
}

func expectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("want object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("want %q, got %v", want, tok)
	}
	return nil
}

// ValueList is a JSON-friendly slice of Values, used wherever a list of
// tagged values appears inside a larger document.
type ValueList []Value

// MarshalJSON implements json.Marshaler for ValueList.
func (l ValueList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, v); err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for ValueList.
func (l *ValueList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ValueList, len(raw))
	for i, r := range raw {
		v, err := UnmarshalValue(r)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	*l = out
	return nil
}
