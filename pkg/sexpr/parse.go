package sexpr

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrParse is returned for malformed documents.
var ErrParse = errors.New("cannot parse S-expression")

// Parse parses a document consisting of exactly one root list.
//
// filePath is only used in error messages and is remembered by the root node.
// Newlines inside lists are preserved as line break nodes, comments starting
// with ";" are dropped.
func Parse(data []byte, filePath string) (*Node, error) {
	p := &parser{content: string(data), path: filePath}

	p.skipSpace(true)

	if p.eof() {
		return nil, p.errorf("No S-Expression node found.")
	}

	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}

	p.skipSpace(true)

	if !p.eof() {
		return nil, p.errorf("File contains more than one root node.")
	}

	root.filePath = filePath

	return root, nil
}

type parser struct {
	content string
	pos     int
	path    string
}

func (p *parser) eof() bool { return p.pos >= len(p.content) }

func (p *parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.path == "" {
		return fmt.Errorf("%w: %s", ErrParse, msg)
	}

	return fmt.Errorf("%w: %s: %s", ErrParse, p.path, msg)
}

func (p *parser) parseNode() (*Node, error) {
	switch p.content[p.pos] {
	case '\n':
		p.pos++
		p.skipSpace(false)

		return NewLineBreak(), nil
	case '(':
		return p.parseList()
	case '"':
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}

		return NewString(s), nil
	default:
		tok, err := p.parseToken()
		if err != nil {
			return nil, err
		}

		return NewToken(tok), nil
	}
}

func (p *parser) parseList() (*Node, error) {
	p.pos++ // '('

	name, err := p.parseToken()
	if err != nil {
		return nil, err
	}

	list := NewList(name)

	for {
		if p.eof() {
			return nil, p.errorf("S-Expression node ended without closing ')'.")
		}

		if p.content[p.pos] == ')' {
			p.pos++
			p.skipSpace(false)

			return list, nil
		}

		child, err := p.parseNode()
		if err != nil {
			return nil, err
		}

		list.children = append(list.children, child)
	}
}

func (p *parser) parseToken() (string, error) {
	start := p.pos
	for !p.eof() && isTokenChar(p.content[p.pos]) {
		p.pos++
	}

	if p.pos == start {
		var c rune
		if !p.eof() {
			c, _ = utf8.DecodeRuneInString(p.content[p.pos:])
		}

		return "", p.errorf("Invalid token character detected: '%c'", c)
	}

	tok := p.content[start:p.pos]
	p.skipSpace(false)

	return tok, nil
}

var unescape = map[byte]byte{
	'\'': '\'',
	'"':  '"',
	'?':  '?',
	'\\': '\\',
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
}

func (p *parser) parseString() (string, error) {
	p.pos++ // '"'

	var b strings.Builder

	escaped := false

	for {
		if p.eof() {
			return "", p.errorf("String ended without quote.")
		}

		c := p.content[p.pos]

		switch {
		case escaped:
			r, ok := unescape[c]
			if !ok {
				bad, _ := utf8.DecodeRuneInString(p.content[p.pos:])

				return "", p.errorf("Illegal escape sequence: '\\%c'", bad)
			}

			b.WriteByte(r)
			p.pos++
			escaped = false
		case c == '"':
			p.pos++
			p.skipSpace(false)

			return b.String(), nil
		case c == '\\':
			escaped = true
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

// skipSpace skips blanks and comments. Newlines are only skipped if
// skipNewline is set; otherwise they end a comment and are left in place.
func (p *parser) skipSpace(skipNewline bool) {
	comment := false

	for !p.eof() {
		c := p.content[p.pos]

		switch c {
		case ';':
			comment = true
		case '\n':
			comment = false
		}

		if comment || (skipNewline && c == '\n') || isBlank(c) {
			p.pos++

			continue
		}

		return
	}
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\f' || c == '\r' || c == '\t' || c == '\v'
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '\\', c == '.', c == ':', c == '_', c == '-':
		return true
	default:
		return false
	}
}

// IsValidToken reports whether s can be written as an unquoted token.
func IsValidToken(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		if !isTokenChar(s[i]) {
			return false
		}
	}

	return true
}
