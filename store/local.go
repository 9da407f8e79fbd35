package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/fheroes2/webstage/metrics"
	"github.com/fheroes2/webstage/vfs"
)

const tmpSuffix = ".stage-tmp"

// Local mirrors the mount into a host directory. Files are written to a
// temporary sibling and renamed into place, and entry mtimes are applied
// to the host files so a later List compares equal.
type Local struct {
	root string
	fs   afero.Fs

	mu      sync.Mutex
	pending map[string]int64 // dir mtimes to re-apply on Commit
}

// NewLocal opens (creating if needed) the directory root.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local backend: empty root")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}
	sub("store").Info("local backend opened", "root", root)
	return &Local{
		root:    root,
		fs:      afero.NewBasePathFs(osFs, root),
		pending: make(map[string]int64),
	}, nil
}

// Root returns the host directory backing the store.
func (l *Local) Root() string { return l.root }

func (l *Local) List(ctx context.Context) (map[string]vfs.EntryMeta, error) {
	start := time.Now()
	out := make(map[string]vfs.EntryMeta)
	err := afero.Walk(l.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		k := key(p)
		if k == "" || strings.HasSuffix(k, tmpSuffix) {
			return nil
		}
		out[k] = vfs.EntryMeta{Mode: info.Mode(), Mtime: info.ModTime().UnixNano()}
		return nil
	})
	metrics.RecordBackendOp(TypeLocal, "list", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.root, err)
	}
	return out, nil
}

func (l *Local) Load(_ context.Context, p string) ([]byte, error) {
	start := time.Now()
	data, err := afero.ReadFile(l.fs, "/"+key(p))
	metrics.RecordBackendOp(TypeLocal, "load", time.Since(start), err == nil)
	return data, err
}

func (l *Local) Put(ctx context.Context, e vfs.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := l.put(e)
	metrics.RecordBackendOp(TypeLocal, "put", time.Since(start), err == nil)
	return err
}

func (l *Local) put(e vfs.Entry) error {
	name := "/" + key(e.Path)
	mt := time.Unix(0, e.Mtime)

	if info, err := l.fs.Stat(name); err == nil && info.IsDir() != e.IsDir() {
		if err := l.fs.RemoveAll(name); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
	}

	if e.IsDir() {
		if err := l.fs.MkdirAll(name, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", name, err)
		}
		if err := l.fs.Chtimes(name, mt, mt); err != nil {
			return fmt.Errorf("chtimes %s: %w", name, err)
		}
		l.mu.Lock()
		l.pending[name] = e.Mtime
		l.mu.Unlock()
		return nil
	}

	if err := l.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("mkdir parent of %s: %w", name, err)
	}
	tmp := name + tmpSuffix
	if err := afero.WriteFile(l.fs, tmp, e.Content, 0o644); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := l.fs.Chtimes(tmp, mt, mt); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("chtimes tmp: %w", err)
	}
	if err := l.fs.Rename(tmp, name); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename tmp to %s: %w", name, err)
	}
	return nil
}

func (l *Local) Delete(_ context.Context, p string) error {
	start := time.Now()
	err := l.fs.RemoveAll("/" + key(p))
	metrics.RecordBackendOp(TypeLocal, "delete", time.Since(start), err == nil)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Commit re-applies directory mtimes, deepest first: writing children
// during the persist bumped them on the host.
func (l *Local) Commit(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dirs := make([]string, 0, len(l.pending))
	for d := range l.pending {
		dirs = append(dirs, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		mt := time.Unix(0, l.pending[d])
		if err := l.fs.Chtimes(d, mt, mt); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("chtimes %s: %w", d, err)
		}
	}
	clear(l.pending)
	return nil
}
