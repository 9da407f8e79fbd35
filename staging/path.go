package staging

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Join concatenates base and segments with single '/' separators. Empty
// segments and repeated separators collapse; a leading '/' on base is
// kept. Join never resolves "." or "..".
func Join(base string, segments ...string) string {
	parts := splitSegments(base)
	for _, s := range segments {
		parts = append(parts, splitSegments(s)...)
	}
	joined := strings.Join(parts, "/")
	if strings.HasPrefix(base, "/") {
		return "/" + joined
	}
	return joined
}

// ParentSegments returns the directories of a relative file path in
// root-to-leaf order: "a/b/c/file.ext" gives ["a", "b", "c"].
func ParentSegments(rel string) []string {
	_, ancestors := SplitRelative(rel)
	return ancestors
}

// SplitRelative separates the leaf name from its ancestor directories.
// Segments are NFC-normalized so the same name picked on different
// platforms lands on the same virtual path.
func SplitRelative(rel string) (leaf string, ancestors []string) {
	parts := splitSegments(rel)
	if len(parts) == 0 {
		return "", nil
	}
	for i, p := range parts {
		parts[i] = norm.NFC.String(p)
	}
	return parts[len(parts)-1], parts[:len(parts)-1]
}

// Destination maps a picked file onto the staging root. The first
// ancestor is the folder the user picked and is dropped:
// "root/data/HEROES2.AGG" under "/fheroes2/data" is written to
// "/fheroes2/data/data/HEROES2.AGG".
func Destination(root, rel string) (dir, file string, err error) {
	leaf, ancestors := SplitRelative(rel)
	if leaf == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	if leaf == "." || leaf == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	for _, s := range ancestors {
		if s == "." || s == ".." {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
		}
	}
	if len(ancestors) > 0 {
		ancestors = ancestors[1:]
	}
	dir = Join(root, ancestors...)
	return dir, Join(dir, leaf), nil
}

func splitSegments(p string) []string {
	fields := strings.Split(p, "/")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
