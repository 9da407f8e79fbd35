package picker

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Ignore holds patterns loaded from a .stageignore file. Entries matching
// any pattern are left out of a pick and do not trigger a restage.
type Ignore struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern string
	dirOnly bool // trailing / in source line
}

// LoadIgnore reads an ignore file. A missing or unreadable file ignores
// nothing.
func LoadIgnore(fsys afero.Fs, name string) *Ignore {
	ig := &Ignore{}

	f, err := fsys.Open(name)
	if err != nil {
		return ig
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := ignorePattern{pattern: line}
		if strings.HasSuffix(line, "/") {
			p.pattern = strings.TrimSuffix(line, "/")
			p.dirOnly = true
		}
		ig.patterns = append(ig.patterns, p)
	}
	sub("picker").Debug("ignore patterns loaded", "file", name, "count", len(ig.patterns))
	return ig
}

// IsIgnored reports whether an entry name matches a pattern. dirOnly
// patterns only match directories. The ignore file itself is always
// ignored.
func (ig *Ignore) IsIgnored(name string, isDir bool) bool {
	if name == IgnoreFile {
		return true
	}
	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if matched, _ := filepath.Match(p.pattern, name); matched {
			return true
		}
	}
	return false
}
