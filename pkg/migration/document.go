package migration

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
)

// document is a parsed file being rewritten. Lookups record the first failure
// and return placeholder values, so a rewrite reads as straight-line code and
// checks [document.err] once at the end.
type document struct {
	path string
	root *sexpr.Node
	err  error
}

// load parses rel below dir.
func load(dir *txdir.Dir, rel string) (*document, error) {
	data, err := dir.Read(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigration, err)
	}

	root, err := sexpr.Parse(data, dir.AbsPath(rel))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return &document{path: rel, root: root}, nil
}

// save writes the document back unless a lookup failed.
func (d *document) save(dir *txdir.Dir) error {
	if d.err != nil {
		return d.err
	}

	data, err := d.root.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMigration, d.path, err)
	}

	return dir.Write(d.path, data)
}

func (d *document) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %s", ErrMigration, d.path, fmt.Sprintf(format, args...))
	}
}

// child returns the node at path below n. A missing node is recorded and a
// detached placeholder is returned.
func (d *document) child(n *sexpr.Node, path string) *sexpr.Node {
	c := n.TryChild(path)
	if c == nil {
		d.fail("missing %q in %q", path, n.Name())

		return sexpr.NewToken("")
	}

	return c
}

func (d *document) value(n *sexpr.Node, path string) string {
	return d.child(n, path).Value()
}

func (d *document) length(n *sexpr.Node, path string) Length {
	v := d.value(n, path)

	l, err := ParseLength(v)
	if err != nil && d.err == nil {
		d.fail("%s: %v", path, err)
	}

	return l
}

func (d *document) unsignedLength(n *sexpr.Node, path string) Length {
	l := d.length(n, path)
	if l < 0 {
		d.fail("%s: length %s must not be negative", path, l)
	}

	return l
}

func (d *document) positiveLength(n *sexpr.Node, path string) Length {
	l := d.length(n, path)
	if l <= 0 {
		d.fail("%s: length %s must be positive", path, l)
	}

	return l
}

func (d *document) angle(n *sexpr.Node, path string) Angle {
	v := d.value(n, path)

	a, err := ParseAngle(v)
	if err != nil && d.err == nil {
		d.fail("%s: %v", path, err)
	}

	return a
}

func (d *document) boolean(n *sexpr.Node, path string) bool {
	switch v := d.value(n, path); v {
	case "true":
		return true
	case "false":
		return false
	default:
		if d.err == nil {
			d.fail("%s: invalid boolean %q", path, v)
		}

		return false
	}
}

// uuid returns the canonical UUID at path.
func (d *document) uuid(n *sexpr.Node, path string) string {
	v := d.value(n, path)
	if d.err != nil {
		return v
	}

	if !validUUID(v) {
		d.fail("%s: invalid UUID %q", path, v)
	}

	return v
}

// optionalUUID returns "" for the token "none".
func (d *document) optionalUUID(n *sexpr.Node, path string) string {
	if d.value(n, path) == "none" {
		return ""
	}

	return d.uuid(n, path)
}

// point reads "(name x y)".
func (d *document) point(n *sexpr.Node, name string) Point {
	p := d.child(n, name)

	return Point{X: d.length(p, "@0"), Y: d.length(p, "@1")}
}

func (d *document) alignment(n *sexpr.Node, name string) Alignment {
	a := d.child(n, name)

	return Alignment{H: d.value(a, "@0"), V: d.value(a, "@1")}
}

// negateRotation flips the sign of "rotation/@0" below n.
func (d *document) negateRotation(n *sexpr.Node) {
	rot := d.child(n, "rotation/@0")
	rot.SetValue(d.angle(n, "rotation/@0").Neg().String())
}

// validUUID reports whether s is a UUID in canonical lowercase form.
func validUUID(s string) bool {
	u, err := uuid.Parse(s)

	return err == nil && u.String() == s
}

func appendPoint(n *sexpr.Node, name string, p Point) {
	n.Append(name, sexpr.NewToken(p.X.String()), sexpr.NewToken(p.Y.String()))
}

func appendAlignment(n *sexpr.Node, name string, a Alignment) {
	n.Append(name, sexpr.NewToken(a.H), sexpr.NewToken(a.V))
}

// cleanSimpleString replaces control characters with spaces and trims the
// result.
func cleanSimpleString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}

		return r
	}, s)

	return strings.TrimSpace(s)
}
