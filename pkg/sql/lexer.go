package sql

import (
	"errors"
	"strings"
)

// ErrUnterminated indicates a string literal, quoted identifier or block comment
// that is never closed.
var ErrUnterminated = errors.New("unterminated literal, identifier or comment")

type tokenKind int

const (
	tokenWord        tokenKind = iota // keyword or bare identifier
	tokenQuotedIdent                  // "x", `x` or [x]
	tokenString                       // 'x', $$x$$
	tokenNumber                       // 42, 1.5e3
	tokenPlaceholder                  // ?, ?1, $1, :name, @name
	tokenPunct                        // operators, parens, commas, dots
	tokenSemicolon
	tokenComment // -- x or /* x */
)

var twoCharOperators = map[string]bool{
	"::": true, "<=": true, ">=": true, "<>": true, "!=": true, "||": true,
}

type token struct {
	kind  tokenKind
	text  string // raw text as written
	value string // literal content for strings, unquoted name for identifiers
	start int
	end   int
}

// upper returns the upper-cased word for keyword comparisons.
func (t token) upper() string {
	if t.kind != tokenWord {
		return ""
	}
	return strings.ToUpper(t.text)
}

// name returns the identifier name for words and quoted identifiers.
func (t token) name() string {
	switch t.kind {
	case tokenWord:
		return t.text
	case tokenQuotedIdent:
		return t.value
	}
	return ""
}

func (t token) isPunct(p string) bool {
	return t.kind == tokenPunct && t.text == p
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// tokenize splits a SQL string into tokens. Whitespace is dropped; comments are
// kept so callers can strip them from the sanitized text.
func tokenize(s string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		start := i

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
			continue

		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				i = len(s)
			} else {
				i += end
			}
			tokens = append(tokens, token{kind: tokenComment, text: s[start:i], start: start, end: i})

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return nil, ErrUnterminated
			}
			i += end + 4
			tokens = append(tokens, token{kind: tokenComment, text: s[start:i], start: start, end: i})

		case c == '\'':
			value, n, ok := scanQuoted(s[i:], '\'', '\'')
			if !ok {
				return nil, ErrUnterminated
			}
			i += n
			tokens = append(tokens, token{kind: tokenString, text: s[start:i], value: value, start: start, end: i})

		case c == '"' || c == '`':
			value, n, ok := scanQuoted(s[i:], c, c)
			if !ok {
				return nil, ErrUnterminated
			}
			i += n
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: s[start:i], value: value, start: start, end: i})

		case c == '[':
			value, n, ok := scanQuoted(s[i:], '[', ']')
			if !ok {
				return nil, ErrUnterminated
			}
			i += n
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: s[start:i], value: value, start: start, end: i})

		case c == '$':
			if i+1 < len(s) && isDigit(s[i+1]) {
				i++
				for i < len(s) && isDigit(s[i]) {
					i++
				}
				tokens = append(tokens, token{kind: tokenPlaceholder, text: s[start:i], start: start, end: i})
				continue
			}
			value, n, ok := scanDollarQuoted(s[i:])
			if !ok {
				return nil, ErrUnterminated
			}
			i += n
			tokens = append(tokens, token{kind: tokenString, text: s[start:i], value: value, start: start, end: i})

		case c == '?':
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenPlaceholder, text: s[start:i], start: start, end: i})

		case (c == ':' || c == '@') && i+1 < len(s) && isIdentStart(s[i+1]) &&
			!(c == ':' && i > 0 && s[i-1] == ':'):
			i++
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenPlaceholder, text: s[start:i], start: start, end: i})

		case c == '@' && i+1 < len(s) && s[i+1] == '@':
			// @@VERSION style system variables.
			i += 2
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: s[start:i], start: start, end: i})

		case isDigit(c) || c == '.' && i+1 < len(s) && isDigit(s[i+1]):
			i = scanNumber(s, i)
			tokens = append(tokens, token{kind: tokenNumber, text: s[start:i], start: start, end: i})

		case isIdentStart(c):
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: s[start:i], start: start, end: i})

		case c == ';':
			i++
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";", start: start, end: i})

		default:
			i++
			if i < len(s) && twoCharOperators[s[start:i+1]] {
				i++
			}
			tokens = append(tokens, token{kind: tokenPunct, text: s[start:i], start: start, end: i})
		}
	}
	return tokens, nil
}

// scanQuoted reads a quoted run starting at s[0] == open. A doubled close
// character is an escaped close. It returns the unescaped content and the
// number of bytes consumed.
func scanQuoted(s string, open, closeChar byte) (string, int, bool) {
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != closeChar {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == closeChar {
			sb.WriteByte(closeChar)
			i++
			continue
		}
		return sb.String(), i + 1, true
	}
	return "", 0, false
}

// scanDollarQuoted reads a PostgreSQL $tag$...$tag$ string.
func scanDollarQuoted(s string) (string, int, bool) {
	end := strings.IndexByte(s[1:], '$')
	if end < 0 {
		return "", 0, false
	}
	tag := s[:end+2]
	for _, c := range []byte(tag[1 : len(tag)-1]) {
		if !isIdentPart(c) {
			return "", 0, false
		}
	}
	body := s[len(tag):]
	closing := strings.Index(body, tag)
	if closing < 0 {
		return "", 0, false
	}
	return body[:closing], len(tag) + closing + len(tag), true
}

func scanNumber(s string, i int) int {
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
			i = j
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
	}
	return i
}

// significant returns the tokens that carry meaning, dropping comments.
func significant(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		if t.kind != tokenComment {
			out = append(out, t)
		}
	}
	return out
}
