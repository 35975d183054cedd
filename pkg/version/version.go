// Package version implements file format versions and the one-line version
// marker files (".librepcb-project", ".librepcb-sym", ...) that record them.
//
// A version is a dotted sequence of 1 to 3 non-negative integers without
// leading zeros ("0.1", "1", "2"). Versions compare numerically per component,
// so "0.10" is newer than "0.9" and "1" equals "1.0".
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormat is returned for malformed version strings and marker files.
var ErrFormat = errors.New("invalid file format version")

// maxComponents is the maximum number of dot separated numbers.
const maxComponents = 3

// Current is the file format version written by this module. Documents with
// a newer version cannot be opened.
var Current = MustParse("2")

// Version is an immutable file format version.
//
// The zero value is not a valid version; use [Parse] or [MustParse].
type Version struct {
	numbers []uint32
}

// Parse parses a dotted version string.
//
// Returns an error wrapping [ErrFormat] if s does not consist of 1 to 3 dot
// separated non-negative integers, or if a component has a leading zero.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrFormat)
	}

	parts := strings.Split(s, ".")
	if len(parts) > maxComponents {
		return Version{}, fmt.Errorf("%w: %q has more than %d components", ErrFormat, s, maxComponents)
	}

	numbers := make([]uint32, 0, len(parts))

	for _, part := range parts {
		if !isNumber(part) {
			return Version{}, fmt.Errorf("%w: %q", ErrFormat, s)
		}

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %w", ErrFormat, s, err)
		}

		numbers = append(numbers, uint32(n))
	}

	return Version{numbers: numbers}, nil
}

// MustParse is like [Parse] but panics on error. Use it for constants only.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}

	if len(s) > 1 && s[0] == '0' {
		return false
	}

	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// IsValid reports whether v was created by [Parse].
func (v Version) IsValid() bool {
	return len(v.numbers) > 0
}

// String returns the version exactly as it was parsed.
func (v Version) String() string {
	var b strings.Builder

	for i, n := range v.numbers {
		if i > 0 {
			b.WriteByte('.')
		}

		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}

	return b.String()
}

// Numbers returns a copy of the version components.
func (v Version) Numbers() []uint32 {
	return append([]uint32(nil), v.numbers...)
}

// Compare returns -1, 0 or +1 if v is older than, equal to or newer than
// other. Missing trailing components count as zero.
func (v Version) Compare(other Version) int {
	n := max(len(v.numbers), len(other.numbers))

	for i := range n {
		a, b := component(v.numbers, i), component(other.numbers, i)

		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}

	return 0
}

func component(numbers []uint32, i int) uint32 {
	if i < len(numbers) {
		return numbers[i]
	}

	return 0
}

// Less reports whether v is older than other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }
