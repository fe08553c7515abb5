package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
	tokColon
	tokDot
	tokMinus
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "identifier"
	case tokInt:
		return "int literal"
	case tokString:
		return "string literal"
	case tokLParen:
		return `"("`
	case tokRParen:
		return `")"`
	case tokLBrace:
		return `"{"`
	case tokRBrace:
		return `"}"`
	case tokComma:
		return `","`
	case tokColon:
		return `":"`
	case tokDot:
		return `"."`
	case tokMinus:
		return `"-"`
	default:
		return "unknown token"
	}
}

type token struct {
	kind tokenKind
	text string // identifier name or decoded string literal
	num  int64
	pos  int // byte offset in source
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentChar(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// lex splits src into tokens. The final token is always tokEOF.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == '{':
			toks = append(toks, token{kind: tokLBrace, pos: i})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokRBrace, pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon, pos: i})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, pos: i})
			i++
		case c == '"':
			s, n, err := lexString(src[i:])
			if err != nil {
				return nil, &SyntaxError{Pos: i, Message: err.Error()}
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n
		case c == '-' && i+1 < len(src) && isDigit(src[i+1]), isDigit(c):
			start := i
			i++
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			n, err := strconv.ParseInt(src[start:i], 10, 64)
			if err != nil {
				return nil, &SyntaxError{Pos: start, Message: fmt.Sprintf("invalid int literal: %s", src[start:i])}
			}
			toks = append(toks, token{kind: tokInt, num: n, pos: start})
		case c == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if !isIdentStart(r) {
				return nil, &SyntaxError{Pos: i, Message: fmt.Sprintf("unexpected character %q", r)}
			}
			start := i
			i += size
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isIdentChar(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString decodes a string literal at the start of s and returns the
// decoded value and the number of source bytes consumed.
func lexString(s string) (string, int, error) {
	var b strings.Builder
	i := 1 // opening quote
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated string escape")
			}
			switch s[i+1] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", 0, fmt.Errorf("unsupported string escape: \\%c", s[i+1])
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}
