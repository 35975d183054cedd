// Package sexpr reads, modifies and writes the S-expression documents used by
// every ".lp" file.
//
// A document is a tree of [Node] values. A list node has a name and children;
// tokens and strings are leaves; line breaks are kept as nodes of their own so
// that a parsed document serializes back to the same bytes.
//
// Example:
//
//	root, err := sexpr.Parse(data, "symbol.lp")
//	if err != nil {
//	    return err
//	}
//
//	for _, pin := range root.ChildrenNamed("pin") {
//	    pin.Append("name_rotation", sexpr.NewToken("0.0"))
//	}
//
//	out, err := root.Bytes()
package sexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned by [Node.Child] if the requested path does not exist.
var ErrNotFound = errors.New("child not found")

// ErrInvalidNode is returned when serializing a node whose name or token value
// contains characters that are not allowed in tokens.
var ErrInvalidNode = errors.New("invalid node")

// Kind is the type of a [Node].
type Kind uint8

// Node kinds.
const (
	KindList Kind = iota
	KindToken
	KindString
	KindLineBreak
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindToken:
		return "token"
	case KindString:
		return "string"
	case KindLineBreak:
		return "linebreak"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Node is a single element of an S-expression tree.
//
// Nodes are mutable and not safe for concurrent modification.
type Node struct {
	kind     Kind
	value    string
	children []*Node
	filePath string
}

// NewList returns an empty list named name.
func NewList(name string) *Node {
	return &Node{kind: KindList, value: name}
}

// NewToken returns an unquoted token.
func NewToken(value string) *Node {
	return &Node{kind: KindToken, value: value}
}

// NewString returns a quoted string.
func NewString(value string) *Node {
	return &Node{kind: KindString, value: value}
}

// NewLineBreak returns a line break node.
func NewLineBreak() *Node {
	return &Node{kind: KindLineBreak}
}

// NewBool returns the token "true" or "false".
func NewBool(b bool) *Node {
	return NewToken(strconv.FormatBool(b))
}

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// IsList reports whether n is a list.
func (n *Node) IsList() bool { return n.kind == KindList }

// IsToken reports whether n is a token.
func (n *Node) IsToken() bool { return n.kind == KindToken }

// IsString reports whether n is a string.
func (n *Node) IsString() bool { return n.kind == KindString }

// IsLineBreak reports whether n is a line break.
func (n *Node) IsLineBreak() bool { return n.kind == KindLineBreak }

// Name returns the name of a list node, or "" for other kinds.
func (n *Node) Name() string {
	if n.kind != KindList {
		return ""
	}

	return n.value
}

// Value returns the value of a token or string node, or "" for other kinds.
func (n *Node) Value() string {
	if n.kind != KindToken && n.kind != KindString {
		return ""
	}

	return n.value
}

// FilePath returns the path of the file the node was parsed from, if any.
func (n *Node) FilePath() string { return n.filePath }

// SetName renames a list node. It has no effect on other kinds.
func (n *Node) SetName(name string) {
	if n.kind == KindList {
		n.value = name
	}
}

// SetValue changes the value of a token or string node. It has no effect on
// other kinds.
func (n *Node) SetValue(value string) {
	if n.kind == KindToken || n.kind == KindString {
		n.value = value
	}
}

// Set replaces n in place with a deep copy of other. Pointers to n stay valid.
func (n *Node) Set(other *Node) {
	c := other.Clone()
	n.kind = c.kind
	n.value = c.value
	n.children = c.children
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := &Node{kind: n.kind, value: n.value, filePath: n.filePath}
	if len(n.children) > 0 {
		c.children = make([]*Node, len(n.children))
		for i, child := range n.children {
			c.children[i] = child.Clone()
		}
	}

	return c
}

// Equal reports whether n and other have the same kind, value and children.
// The file path is ignored.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}

	if n.kind != other.kind || n.value != other.value || len(n.children) != len(other.children) {
		return false
	}

	for i := range n.children {
		if !n.children[i].Equal(other.children[i]) {
			return false
		}
	}

	return true
}

// Children returns the direct children including line breaks. The returned
// slice must not be modified; use the mutation methods instead.
func (n *Node) Children() []*Node { return n.children }

// ChildrenNamed returns all direct child lists named name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node

	for _, child := range n.children {
		if child.kind == KindList && child.value == name {
			out = append(out, child)
		}
	}

	return out
}

// ChildrenOfKind returns all direct children of the given kind.
func (n *Node) ChildrenOfKind(kind Kind) []*Node {
	var out []*Node

	for _, child := range n.children {
		if child.kind == kind {
			out = append(out, child)
		}
	}

	return out
}

// TryChild looks up a descendant by path and returns nil if it doesn't exist.
//
// The path is a "/" separated list of segments. A segment "@N" selects the
// N-th child not counting line breaks, any other segment selects the first
// child list with that name. For example "position/@1" returns the y
// coordinate of "(position 1.0 2.0)".
func (n *Node) TryChild(path string) *Node {
	current := n

	for segment := range strings.SplitSeq(path, "/") {
		if idx, ok := strings.CutPrefix(segment, "@"); ok {
			i, err := strconv.Atoi(idx)
			if err != nil || i < 0 {
				return nil
			}

			current = current.nthValueChild(i)
		} else {
			current = current.firstList(segment)
		}

		if current == nil {
			return nil
		}
	}

	return current
}

// Child is like [Node.TryChild] but returns an error wrapping [ErrNotFound]
// if the path does not exist.
func (n *Node) Child(path string) (*Node, error) {
	child := n.TryChild(path)
	if child == nil {
		if n.filePath != "" {
			return nil, fmt.Errorf("%s: %w: %s", n.filePath, ErrNotFound, path)
		}

		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return child, nil
}

// ChildValue returns the value of the token or string at path.
func (n *Node) ChildValue(path string) (string, error) {
	child, err := n.Child(path)
	if err != nil {
		return "", err
	}

	return child.Value(), nil
}

func (n *Node) nthValueChild(i int) *Node {
	for _, child := range n.children {
		if child.kind == KindLineBreak {
			continue
		}

		if i == 0 {
			return child
		}

		i--
	}

	return nil
}

func (n *Node) firstList(name string) *Node {
	for _, child := range n.children {
		if child.kind == KindList && child.value == name {
			return child
		}
	}

	return nil
}

// ContainsChild reports whether a direct child is equal to node.
func (n *Node) ContainsChild(node *Node) bool {
	for _, child := range n.children {
		if child.Equal(node) {
			return true
		}
	}

	return false
}

// AppendChild appends child and returns it.
func (n *Node) AppendChild(child *Node) *Node {
	n.children = append(n.children, child)

	return child
}

// AppendList appends an empty list named name and returns it.
func (n *Node) AppendList(name string) *Node {
	return n.AppendChild(NewList(name))
}

// Append appends a list named name holding values and returns the new list.
//
//	node.Append("name_align", sexpr.NewToken("left"), sexpr.NewToken("center"))
//
// appends "(name_align left center)".
func (n *Node) Append(name string, values ...*Node) *Node {
	list := n.AppendList(name)
	list.children = append(list.children, values...)

	return list
}

// AppendToken appends a list named name holding a single token.
func (n *Node) AppendToken(name, token string) *Node {
	return n.Append(name, NewToken(token))
}

// AppendString appends a list named name holding a single string.
func (n *Node) AppendString(name, value string) *Node {
	return n.Append(name, NewString(value))
}

// AppendLineBreak appends a line break.
func (n *Node) AppendLineBreak() {
	n.AppendChild(NewLineBreak())
}

// EnsureLineBreak appends a line break unless the last child already is one.
func (n *Node) EnsureLineBreak() {
	if len(n.children) == 0 || n.children[len(n.children)-1].kind != KindLineBreak {
		n.AppendLineBreak()
	}
}

// InsertChild inserts child at index i of the children slice.
func (n *Node) InsertChild(i int, child *Node) *Node {
	i = min(max(i, 0), len(n.children))
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child

	return child
}

// RemoveChild removes the given child (compared by identity). It reports
// whether the child was found.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)

			return true
		}
	}

	return false
}

// RemoveChildrenNamed removes all direct child lists named name and returns
// how many were removed.
func (n *Node) RemoveChildrenNamed(name string) int {
	kept := n.children[:0]
	removed := 0

	for _, child := range n.children {
		if child.kind == KindList && child.value == name {
			removed++

			continue
		}

		kept = append(kept, child)
	}

	clear(n.children[len(kept):])
	n.children = kept

	return removed
}

// ReplaceRecursive replaces every node equal to search, at any depth, with a
// copy of replace.
func (n *Node) ReplaceRecursive(search, replace *Node) {
	if n.Equal(search) {
		n.Set(replace)

		return
	}

	for _, child := range n.children {
		child.ReplaceRecursive(search, replace)
	}
}

// RemoveChildrenWithNodeRecursive removes, at any depth, every child list that
// has a direct child equal to search.
func (n *Node) RemoveChildrenWithNodeRecursive(search *Node) {
	kept := n.children[:0]

	for _, child := range n.children {
		if child.kind == KindList && child.ContainsChild(search) {
			continue
		}

		kept = append(kept, child)
	}

	clear(n.children[len(kept):])
	n.children = kept

	for _, child := range n.children {
		child.RemoveChildrenWithNodeRecursive(search)
	}
}
