// Package vfs is the runtime-owned virtual filesystem: an in-memory tree
// with POSIX-like single-step operations and mount points that reconcile
// against durable backends on Sync.
package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/metrics"
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// Node describes a resolved path.
type Node struct {
	Path    string
	Mode    fs.FileMode
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the node is a directory.
func (n Node) IsDir() bool {
	return n.Mode&fs.ModeType == fs.ModeDir
}

type mount struct {
	point   string
	backend Backend
}

// FS is the virtual filesystem. All paths are absolute and '/'-separated.
// Every operation is serialized, matching the single event context the
// game runtime expects.
type FS struct {
	mu     sync.Mutex
	mem    afero.Fs
	mounts map[string]mount
	dirty  bool
}

// New creates an empty filesystem containing only the root directory.
func New() *FS {
	return &FS{
		mem:    afero.NewMemMapFs(),
		mounts: make(map[string]mount),
	}
}

func clean(name string) string {
	return path.Clean("/" + name)
}

// Mount attaches backend at mountPoint, which must be an existing directory.
func (f *FS) Mount(backend Backend, mountPoint string) error {
	mountPoint = clean(mountPoint)
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.mem.Stat(mountPoint)
	if err != nil {
		return pathErr("mount", mountPoint, err)
	}
	if !info.IsDir() {
		return &PathError{Op: "mount", Path: mountPoint, Err: ErrNotDir}
	}
	if _, exists := f.mounts[mountPoint]; exists {
		return &PathError{Op: "mount", Path: mountPoint, Err: fs.ErrExist}
	}
	f.mounts[mountPoint] = mount{point: mountPoint, backend: backend}
	sub("vfs").Info("mounted backend", "mountPoint", mountPoint, "backend", fmt.Sprintf("%T", backend))
	return nil
}

// Mkdir creates exactly one directory. It fails if the parent is missing
// or the path already exists.
func (f *FS) Mkdir(name string) error {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireDir(path.Dir(name), "mkdir", name); err != nil {
		return err
	}
	if err := f.mem.Mkdir(name, dirPerm); err != nil {
		return pathErr("mkdir", name, err)
	}
	f.dirty = true
	return nil
}

// Lookup resolves name, failing if it does not exist.
func (f *FS) Lookup(name string) (Node, error) {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.mem.Stat(name)
	if err != nil {
		return Node{}, pathErr("lookup", name, err)
	}
	return Node{Path: name, Mode: info.Mode(), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Stat returns the mode bits of name.
func (f *FS) Stat(name string) (fs.FileMode, error) {
	node, err := f.Lookup(name)
	if err != nil {
		return 0, err
	}
	return node.Mode, nil
}

// Readdir returns the names of the immediate children of a directory,
// sorted by name.
func (f *FS) Readdir(name string) ([]string, error) {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireDir(name, "readdir", name); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(f.mem, name)
	if err != nil {
		return nil, pathErr("readdir", name, err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

// Unlink removes a file. Directories are refused with ErrIsDir.
func (f *FS) Unlink(name string) error {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.mem.Stat(name)
	if err != nil {
		return pathErr("unlink", name, err)
	}
	if info.IsDir() {
		return &PathError{Op: "unlink", Path: name, Err: ErrIsDir}
	}
	if err := f.mem.Remove(name); err != nil {
		return pathErr("unlink", name, err)
	}
	f.dirty = true
	return nil
}

// Rmdir removes an empty directory.
func (f *FS) Rmdir(name string) error {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "/" {
		return &PathError{Op: "rmdir", Path: name, Err: fs.ErrInvalid}
	}
	if err := f.requireDir(name, "rmdir", name); err != nil {
		return err
	}
	children, err := afero.ReadDir(f.mem, name)
	if err != nil {
		return pathErr("rmdir", name, err)
	}
	if len(children) > 0 {
		return &PathError{Op: "rmdir", Path: name, Err: ErrNotEmpty}
	}
	if err := f.mem.Remove(name); err != nil {
		return pathErr("rmdir", name, err)
	}
	f.dirty = true
	return nil
}

// WriteFile creates or truncates a file. The parent directory must exist.
func (f *FS) WriteFile(name string, data []byte) error {
	name = clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireDir(path.Dir(name), "write", name); err != nil {
		return err
	}
	if info, err := f.mem.Stat(name); err == nil && info.IsDir() {
		return &PathError{Op: "write", Path: name, Err: ErrIsDir}
	}
	if err := afero.WriteFile(f.mem, name, data, filePerm); err != nil {
		return pathErr("write", name, err)
	}
	f.dirty = true
	return nil
}

// Dirty reports whether the tree was mutated since the last successful Sync.
func (f *FS) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// IOFS exposes the subtree rooted at root as a read-only fs.FS.
func (f *FS) IOFS(root string) fs.FS {
	return afero.NewIOFS(afero.NewReadOnlyFs(afero.NewBasePathFs(f.mem, clean(root))))
}

// Sync reconciles every mount with its backend. With populate set, durable
// state is pulled into memory; otherwise memory is persisted.
func (f *FS) Sync(ctx context.Context, populate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.mounts) == 0 {
		return ErrNotMounted
	}

	direction := "persist"
	if populate {
		direction = "populate"
	}

	points := make([]string, 0, len(f.mounts))
	for p := range f.mounts {
		points = append(points, p)
	}
	sort.Strings(points)

	start := nowFunc()
	for _, p := range points {
		if err := f.reconcile(ctx, f.mounts[p], populate); err != nil {
			metrics.RecordSync(direction, time.Since(start), false)
			sub("vfs").Error("sync failed", "direction", direction, "mountPoint", p, "err", err)
			return fmt.Errorf("sync %s %s: %w", direction, p, err)
		}
	}
	metrics.RecordSync(direction, time.Since(start), true)
	f.dirty = false
	sub("vfs").Info("sync complete", "direction", direction, "mounts", len(points), "elapsed", time.Since(start))
	return nil
}

// requireDir must be called with f.mu held.
func (f *FS) requireDir(dir, op, name string) error {
	info, err := f.mem.Stat(dir)
	if err != nil {
		return pathErr(op, name, err)
	}
	if !info.IsDir() {
		return &PathError{Op: op, Path: name, Err: ErrNotDir}
	}
	return nil
}
