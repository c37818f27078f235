package formula

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokField
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// two-character operators are matched before single characters
var operators = []string{"&&", "||", "==", "!=", "<>", "<=", ">=", "+", "-", "*", "/", "%", "(", ")", ",", "!", "<", ">", "="}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated field reference"}
			}
			raw := src[i+1 : i+1+end]
			if strings.ContainsRune(raw, '{') {
				return nil, &SyntaxError{Pos: i, Msg: "nested '{' in field reference"}
			}
			name := strings.TrimSpace(raw)
			if name == "" {
				return nil, &SyntaxError{Pos: i, Msg: "empty field reference"}
			}
			toks = append(toks, token{kind: tokField, text: name, pos: i})
			i += end + 2

		case r == '"' || r == '\'':
			s, n, err := scanString(src[i:], byte(r))
			if err != nil {
				return nil, &SyntaxError{Pos: i, Msg: err.Error()}
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n

		case r >= '0' && r <= '9' || r == '.' && i+1 < len(src) && isDigit(src[i+1]):
			n := scanNumber(src[i:])
			toks = append(toks, token{kind: tokNumber, text: src[i : i+n], pos: i})
			i += n

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})

		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, &SyntaxError{Pos: i, Msg: "unexpected character " + string(r)}
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func scanNumber(s string) int {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

// scanString reads a quoted literal. Backslash escapes the next character.
func scanString(s string, quote byte) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, errUnterminated
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, errUnterminated
}
