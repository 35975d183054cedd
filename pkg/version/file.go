package version

import (
	"fmt"
	"strings"
)

// File is the content of a version marker file.
type File struct {
	Version Version
}

// NewFile returns a marker file for v.
func NewFile(v Version) File {
	return File{Version: v}
}

// Bytes serializes the marker: the version followed by a newline.
func (f File) Bytes() []byte {
	return []byte(f.Version.String() + "\n")
}

// ParseFile parses the content of a marker file.
//
// The content must contain exactly one non-empty line holding a valid version.
// Surrounding whitespace and blank lines are ignored. Any violation returns an
// error wrapping [ErrFormat].
func ParseFile(data []byte) (File, error) {
	var line string

	found := 0

	for raw := range strings.SplitSeq(string(data), "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		found++
		line = trimmed
	}

	switch {
	case found == 0:
		return File{}, fmt.Errorf("%w: version file is empty", ErrFormat)
	case found > 1:
		return File{}, fmt.Errorf("%w: version file has %d non-empty lines", ErrFormat, found)
	}

	v, err := Parse(line)
	if err != nil {
		return File{}, fmt.Errorf("parse version file: %w", err)
	}

	return File{Version: v}, nil
}
