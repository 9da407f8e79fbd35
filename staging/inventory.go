package staging

import (
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// InventoryEntry is one staged node, Path relative to the listed root.
type InventoryEntry struct {
	Path string `json:"path" yaml:"path"`
	Dir  bool   `json:"dir" yaml:"dir"`
	Size int64  `json:"size" yaml:"size"`
}

// Inventory walks root and returns every node in natural order, so
// MAP2.MP2 sorts before MAP10.MP2.
func Inventory(fsys FileSystem, root string) ([]InventoryEntry, error) {
	var out []InventoryEntry
	if err := inventory(fsys, root, root, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return natural.Less(out[i].Path, out[j].Path)
	})
	return out, nil
}

func inventory(fsys FileSystem, root, dir string, out *[]InventoryEntry) error {
	names, err := fsys.Readdir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		p := Join(dir, name)
		node, err := fsys.Lookup(p)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		e := InventoryEntry{Path: rel, Dir: node.IsDir()}
		if !e.Dir {
			e.Size = node.Size
		}
		*out = append(*out, e)
		if e.Dir {
			if err := inventory(fsys, root, p, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// TotalSize sums file sizes.
func TotalSize(entries []InventoryEntry) int64 {
	var n int64
	for _, e := range entries {
		if !e.Dir {
			n += e.Size
		}
	}
	return n
}
