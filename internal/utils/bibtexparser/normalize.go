package bibtexparser

import (
	"fmt"
	"strings"
)

// monthMacros are the predefined BibTeX month strings.
var monthMacros = map[string]string{
	"jan": "January", "feb": "February", "mar": "March",
	"apr": "April", "may": "May", "jun": "June",
	"jul": "July", "aug": "August", "sep": "September",
	"oct": "October", "nov": "November", "dec": "December",
}

// normalizer rewrites BibTeX so every field value is a single braced literal.
// nickng/bibtex keeps braced literals verbatim but drops the inner braces of
// quoted values and every part of a # concatenation after the first, and it
// exits the process on an undefined @string macro.
type normalizer struct {
	src    string
	pos    int
	macros map[string]string
}

func normalizeValues(src string) (string, error) {
	n := &normalizer{src: src, macros: make(map[string]string, len(monthMacros))}
	for k, v := range monthMacros {
		n.macros[k] = v
	}

	var out strings.Builder
	for {
		at := strings.IndexByte(n.src[n.pos:], '@')
		if at < 0 {
			return out.String(), nil
		}
		n.pos += at + 1

		n.skipSpace()
		entryType := n.ident()
		if entryType == "" {
			return "", n.errorf("missing entry type after @")
		}
		n.skipSpace()
		closer, err := n.open()
		if err != nil {
			return "", err
		}

		switch strings.ToLower(entryType) {
		case "comment":
			n.pos--
			if _, err := n.delimited(n.src[n.pos], closer); err != nil {
				return "", err
			}
		case "preamble":
			if _, err := n.value(); err != nil {
				return "", err
			}
			if err := n.expect(closer); err != nil {
				return "", err
			}
		case "string":
			if err := n.stringMacro(closer); err != nil {
				return "", err
			}
		default:
			if err := n.entry(&out, entryType, closer); err != nil {
				return "", err
			}
		}
	}
}

func (n *normalizer) entry(out *strings.Builder, entryType string, closer byte) error {
	n.skipSpace()
	key := n.key()
	if key == "" {
		return n.errorf("entry of type %q has an empty cite key", entryType)
	}
	fmt.Fprintf(out, "@%s{%s,", entryType, key)

	for {
		n.skipSpace()
		if n.eof() {
			return n.errorf("unterminated entry %q", key)
		}
		switch n.src[n.pos] {
		case closer:
			n.pos++
			out.WriteString("\n}\n\n")
			return nil
		case ',':
			n.pos++
		default:
			return n.errorf("expected ',' after %q", key)
		}

		n.skipSpace()
		if !n.eof() && n.src[n.pos] == closer {
			continue
		}
		name := n.ident()
		if name == "" {
			return n.errorf("missing field name in entry %q", key)
		}
		if err := n.expect('='); err != nil {
			return err
		}
		value, err := n.value()
		if err != nil {
			return err
		}
		literal, err := literalFor(value)
		if err != nil {
			return fmt.Errorf("field %s of %q: %w", name, key, err)
		}
		fmt.Fprintf(out, "\n  %s = %s,", name, literal)
	}
}

func (n *normalizer) stringMacro(closer byte) error {
	n.skipSpace()
	name := n.ident()
	if name == "" {
		return n.errorf("missing @string name")
	}
	if err := n.expect('='); err != nil {
		return err
	}
	value, err := n.value()
	if err != nil {
		return err
	}
	n.macros[strings.ToLower(name)] = value
	return n.expect(closer)
}

// value reads one field value, joining # concatenations and expanding macros.
func (n *normalizer) value() (string, error) {
	var b strings.Builder
	for {
		n.skipSpace()
		if n.eof() {
			return "", n.errorf("missing value")
		}
		switch c := n.src[n.pos]; c {
		case '{':
			part, err := n.delimited('{', '}')
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		case '"':
			part, err := n.delimited('"', '"')
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		default:
			name := n.ident()
			if name == "" {
				return "", n.errorf("unexpected %q in value", c)
			}
			if isNumber(name) {
				b.WriteString(name)
				break
			}
			macro, ok := n.macros[strings.ToLower(name)]
			if !ok {
				return "", n.errorf("undefined string macro %q", name)
			}
			b.WriteString(macro)
		}

		n.skipSpace()
		if n.eof() || n.src[n.pos] != '#' {
			return b.String(), nil
		}
		n.pos++
	}
}

// delimited returns the text between opening and its matching closing. Braces
// inside are kept and must balance.
func (n *normalizer) delimited(opening, closing byte) (string, error) {
	start := n.pos + 1
	depth := 0
	for i := start; i < len(n.src); i++ {
		switch n.src[i] {
		case '{':
			depth++
			continue
		case '}':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 && n.src[i] == closing {
			n.pos = i + 1
			return n.src[start:i], nil
		}
	}
	n.pos = len(n.src)
	return "", n.errorf("unterminated %c value", opening)
}

// literalFor renders value in a form the parser returns unchanged.
func literalFor(value string) (string, error) {
	if !strings.Contains(value, "@") {
		return "{" + value + "}", nil
	}
	if strings.ContainsAny(value, "{}\"") {
		return "", fmt.Errorf("%w: value with '@' cannot also contain braces or quotes", ErrMalformed)
	}
	return `"` + value + `"`, nil
}

func (n *normalizer) open() (byte, error) {
	if n.eof() {
		return 0, n.errorf("unexpected end of input")
	}
	switch n.src[n.pos] {
	case '{':
		n.pos++
		return '}', nil
	case '(':
		n.pos++
		return ')', nil
	}
	return 0, n.errorf("expected '{' or '('")
}

func (n *normalizer) expect(c byte) error {
	n.skipSpace()
	if n.eof() || n.src[n.pos] != c {
		return n.errorf("expected %q", c)
	}
	n.pos++
	return nil
}

func (n *normalizer) key() string {
	start := n.pos
	for !n.eof() && !isSpace(n.src[n.pos]) && !strings.ContainsRune(",{}()\"", rune(n.src[n.pos])) {
		n.pos++
	}
	return n.src[start:n.pos]
}

func (n *normalizer) ident() string {
	start := n.pos
	for !n.eof() && !isSpace(n.src[n.pos]) && !strings.ContainsRune("\"#%'(),={}@", rune(n.src[n.pos])) {
		n.pos++
	}
	return n.src[start:n.pos]
}

func (n *normalizer) skipSpace() {
	for !n.eof() && isSpace(n.src[n.pos]) {
		n.pos++
	}
}

func (n *normalizer) eof() bool {
	return n.pos >= len(n.src)
}

func (n *normalizer) errorf(format string, args ...any) error {
	line := strings.Count(n.src[:min(n.pos, len(n.src))], "\n") + 1
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, line, fmt.Sprintf(format, args...))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNumber(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
