package vfs

import (
	"strings"
)

// CleanPath normalizes a relative path: backslashes become slashes, empty and
// "." segments are dropped and ".." is resolved lexically. Leading ".."
// segments that cannot be resolved are kept, see [IsBreakout].
//
//	CleanPath(` /foo\\bar/./../baz/ `) == "foo/baz"
//	CleanPath("../x") == "../x"
func CleanPath(path string) string {
	path = strings.ReplaceAll(strings.TrimSpace(path), `\`, "/")

	segments := make([]string, 0, strings.Count(path, "/")+1)

	for seg := range strings.SplitSeq(path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if n := len(segments); n > 0 && segments[n-1] != ".." {
				segments = segments[:n-1]
			} else {
				segments = append(segments, seg)
			}
		default:
			segments = append(segments, seg)
		}
	}

	return strings.TrimSpace(strings.Join(segments, "/"))
}

// IsBreakout reports whether a cleaned path points outside the root.
func IsBreakout(cleaned string) bool {
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

// Join joins relative path elements and cleans the result.
func Join(elem ...string) string {
	return CleanPath(strings.Join(elem, "/"))
}

// dirPrefix returns "dir/" for a non-empty cleaned dir and "" for the root.
func dirPrefix(dir string) string {
	if dir == "" {
		return ""
	}

	return dir + "/"
}

// isHidden reports whether a path segment is a dot file or dot directory.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
