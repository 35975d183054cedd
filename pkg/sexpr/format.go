package sexpr

import (
	"fmt"
	"strings"
)

// Bytes serializes the tree rooted at n. The output always ends with a newline.
//
// Returns an error wrapping [ErrInvalidNode] if a list name or token value
// cannot be written unquoted.
func (n *Node) Bytes() ([]byte, error) {
	var b strings.Builder

	err := n.write(&b, 0)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}

// Format serializes the tree rooted at n with the given base indentation and
// without a trailing newline.
func (n *Node) Format(indent int) (string, error) {
	var b strings.Builder

	err := n.write(&b, indent)
	if err != nil {
		return "", err
	}

	return b.String(), nil
}

// String implements [fmt.Stringer]. Invalid nodes are written as they are.
func (n *Node) String() string {
	var b strings.Builder

	_ = n.write(&b, 0)

	return b.String()
}

func (n *Node) write(b *strings.Builder, indent int) error {
	switch n.kind {
	case KindList:
		return n.writeList(b, indent)
	case KindToken:
		b.WriteString(n.value)

		if !IsValidToken(n.value) {
			return fmt.Errorf("%w: token %q", ErrInvalidNode, n.value)
		}

		return nil
	case KindString:
		b.WriteByte('"')
		b.WriteString(escapeString(n.value))
		b.WriteByte('"')

		return nil
	case KindLineBreak:
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", indent))

		return nil
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidNode, n.kind)
	}
}

// writeList writes "(name child child ...)". A line break as last child is
// indented one level less so the closing paren lines up with the opening one,
// and the first of two consecutive line breaks is not indented at all.
func (n *Node) writeList(b *strings.Builder, indent int) error {
	var err error

	if !IsValidToken(n.value) {
		err = fmt.Errorf("%w: list name %q", ErrInvalidNode, n.value)
	}

	b.WriteByte('(')
	b.WriteString(n.value)

	lastIsSpace := false
	last := len(n.children) - 1

	for i, child := range n.children {
		if !lastIsSpace && !child.IsLineBreak() {
			b.WriteByte(' ')
		}

		nextIsLineBreak := i < last && n.children[i+1].IsLineBreak()

		childIndent := indent + 1
		if child.IsLineBreak() && nextIsLineBreak {
			childIndent = 0
		}

		lastIsSpace = child.IsLineBreak() && childIndent > 0
		if lastIsSpace && i == last {
			childIndent--
		}

		childErr := child.write(b, childIndent)
		if childErr != nil && err == nil {
			err = childErr
		}
	}

	b.WriteByte(')')

	return err
}

var escapeReplacer = strings.NewReplacer(
	`"`, `\"`,
	`\`, `\\`,
	"\b", `\b`,
	"\f", `\f`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\v", `\v`,
)

func escapeString(s string) string {
	return escapeReplacer.Replace(s)
}
