package vfs

import (
	"context"
	"io/fs"
	"time"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// EntryMeta is what a reconcile compares: the mode and the mtime.
type EntryMeta struct {
	Mode  fs.FileMode `json:"mode"`
	Mtime int64       `json:"mtime"` // nanoseconds
}

// IsDir reports whether the entry is a directory.
func (m EntryMeta) IsDir() bool {
	return m.Mode&fs.ModeType == fs.ModeDir
}

// Entry is a node stored in a durable backend. Paths are relative to the
// mount point, '/'-separated, without a leading slash.
type Entry struct {
	EntryMeta
	Path    string
	Content []byte // nil for directories
}

// Backend is durable storage attached to a mount point.
type Backend interface {
	// List returns every stored entry keyed by relative path.
	List(ctx context.Context) (map[string]EntryMeta, error)
	// Load returns the content of a stored file.
	Load(ctx context.Context, path string) ([]byte, error)
	// Put creates or replaces an entry.
	Put(ctx context.Context, e Entry) error
	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, path string) error
}

// Committer is implemented by backends that buffer changes made during a
// persist and need a final write.
type Committer interface {
	Commit(ctx context.Context) error
}
