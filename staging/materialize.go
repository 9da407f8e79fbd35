package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Materialize makes sure every directory along dir exists, creating only
// the missing ones, root to leaf. Calling it again for the same or a
// sibling path is a no-op for the existing prefix. A Mkdir that loses a
// race to an existing directory is not an error.
func Materialize(fsys FileSystem, dir string) error {
	if _, err := fsys.Lookup(dir); err == nil {
		return nil
	}

	prefix := ""
	if strings.HasPrefix(dir, "/") {
		prefix = "/"
	}
	for _, seg := range splitSegments(dir) {
		prefix = Join(prefix, seg)
		if _, err := fsys.Lookup(prefix); err == nil {
			continue
		}
		if err := fsys.Mkdir(prefix); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("materialize %s: %w", prefix, err)
		}
	}
	return nil
}
