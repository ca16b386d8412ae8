package parser

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind uint8

const (
	tkEOF tokenKind = iota
	tkWord
	tkNumber
	tkString
	tkSymbol
)

type token struct {
	kind tokenKind
	text string // words keep their spelling; strings are unquoted
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tkEOF:
		return "end of input"
	case tkString:
		return fmt.Sprintf("string %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// is reports whether t is the keyword or symbol s (case-insensitive for words).
func (t token) is(s string) bool {
	switch t.kind {
	case tkWord:
		return strings.EqualFold(t.text, s)
	case tkSymbol:
		return t.text == s
	default:
		return false
	}
}

// lex splits sql into tokens. Quoted strings may contain any character;
// a doubled quote inside a string stands for one quote.
func lex(sql string) ([]token, error) {
	var out []token
	rs := []rune(sql)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'' || r == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(rs) {
				if rs[i] == r {
					if i+1 < len(rs) && rs[i+1] == r {
						b.WriteRune(r)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteRune(rs[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string starting at offset %d", start)
			}
			out = append(out, token{kind: tkString, text: b.String(), pos: start})

		case r == '`':
			start := i
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			out = append(out, token{kind: tkWord, text: string(rs[i+1 : j]), pos: start})
			i = j + 1

		case unicode.IsDigit(r):
			start := i
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i+1 < len(rs) && rs[i] == '.' && unicode.IsDigit(rs[i+1]) {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			if i < len(rs) && (unicode.IsLetter(rs[i]) || rs[i] == '_') {
				return nil, fmt.Errorf("malformed number at offset %d", start)
			}
			out = append(out, token{kind: tkNumber, text: string(rs[start:i]), pos: start})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			out = append(out, token{kind: tkWord, text: string(rs[start:i]), pos: start})

		default:
			start := i
			two := ""
			if i+1 < len(rs) {
				two = string(rs[i : i+2])
			}
			switch two {
			case "!=", "<>", "<=", ">=":
				sym := two
				if sym == "<>" {
					sym = "!="
				}
				out = append(out, token{kind: tkSymbol, text: sym, pos: start})
				i += 2
				continue
			}
			switch r {
			case '(', ')', ',', ';', '.', '*', '=', '<', '>', '-', '+':
				out = append(out, token{kind: tkSymbol, text: string(r), pos: start})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, start)
			}
		}
	}
	out = append(out, token{kind: tkEOF, pos: len(rs)})
	return out, nil
}
