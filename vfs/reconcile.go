package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/fheroes2/webstage/logging"
)

// reconcile brings one side of a mount in line with the other. An entry
// is (re)created when it is missing on the target side or its mtime or
// type differs; target entries absent on the source side are removed.
// Creates run parents first, removals children first.
// Must be called with f.mu held.
func (f *FS) reconcile(ctx context.Context, m mount, populate bool) error {
	l := sub("reconcile")

	local, err := f.localEntries(m.point)
	if err != nil {
		return fmt.Errorf("scan memory: %w", err)
	}
	remote, err := m.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("list backend: %w", err)
	}

	src, dst := local, remote
	if populate {
		src, dst = remote, local
	}

	var create, remove []string
	for p, meta := range src {
		d, ok := dst[p]
		if !ok || d.Mtime != meta.Mtime || d.IsDir() != meta.IsDir() {
			create = append(create, p)
		}
	}
	for p := range dst {
		if _, ok := src[p]; !ok {
			remove = append(remove, p)
		}
	}
	sort.Strings(create)
	sort.Sort(sort.Reverse(sort.StringSlice(remove)))

	l.Debug("reconcile plan", "mountPoint", m.point, "populate", populate,
		"local", len(local), "remote", len(remote), "create", len(create), "remove", len(remove))

	if populate {
		return f.applyPopulate(ctx, m, remote, create, remove)
	}
	return f.applyPersist(ctx, m, local, create, remove)
}

func (f *FS) applyPopulate(ctx context.Context, m mount, remote map[string]EntryMeta, create, remove []string) error {
	l := sub("reconcile")
	var dirs []string

	for _, p := range create {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta := remote[p]
		full := path.Join(m.point, p)

		if info, err := f.mem.Stat(full); err == nil && info.IsDir() != meta.IsDir() {
			if err := f.mem.RemoveAll(full); err != nil {
				return fmt.Errorf("replace %s: %w", full, err)
			}
		}

		if meta.IsDir() {
			if err := f.mem.MkdirAll(full, dirPerm); err != nil {
				return fmt.Errorf("mkdir %s: %w", full, err)
			}
			dirs = append(dirs, full)
		} else {
			data, err := m.backend.Load(ctx, p)
			if err != nil {
				return fmt.Errorf("load %s: %w", p, err)
			}
			if err := f.mem.MkdirAll(path.Dir(full), dirPerm); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", full, err)
			}
			if err := afero.WriteFile(f.mem, full, data, filePerm); err != nil {
				return fmt.Errorf("write %s: %w", full, err)
			}
			mt := time.Unix(0, meta.Mtime)
			if err := f.mem.Chtimes(full, mt, mt); err != nil {
				return fmt.Errorf("chtimes %s: %w", full, err)
			}
		}
		if logging.Enabled(slog.LevelDebug) {
			l.Debug("populated", "path", full, "dir", meta.IsDir())
		}
	}

	for _, p := range remove {
		if err := ctx.Err(); err != nil {
			return err
		}
		full := path.Join(m.point, p)
		if err := f.mem.RemoveAll(full); err != nil {
			return fmt.Errorf("remove %s: %w", full, err)
		}
		if logging.Enabled(slog.LevelDebug) {
			l.Debug("dropped", "path", full)
		}
	}

	// Directory mtimes last, deepest first, so adding children does not
	// leave them out of step with the backend.
	for i := len(dirs) - 1; i >= 0; i-- {
		rel := strings.TrimPrefix(strings.TrimPrefix(dirs[i], m.point), "/")
		mt := time.Unix(0, remote[rel].Mtime)
		if err := f.mem.Chtimes(dirs[i], mt, mt); err != nil {
			return fmt.Errorf("chtimes %s: %w", dirs[i], err)
		}
	}
	return nil
}

func (f *FS) applyPersist(ctx context.Context, m mount, local map[string]EntryMeta, create, remove []string) error {
	l := sub("reconcile")

	for _, p := range create {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := Entry{Path: p, EntryMeta: local[p]}
		if !e.IsDir() {
			data, err := afero.ReadFile(f.mem, path.Join(m.point, p))
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			e.Content = data
		}
		if err := m.backend.Put(ctx, e); err != nil {
			return fmt.Errorf("put %s: %w", p, err)
		}
		if logging.Enabled(slog.LevelDebug) {
			l.Debug("persisted", "path", p, "dir", e.IsDir(), "size", len(e.Content))
		}
	}

	for _, p := range remove {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.backend.Delete(ctx, p); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
		if logging.Enabled(slog.LevelDebug) {
			l.Debug("deleted", "path", p)
		}
	}

	if c, ok := m.backend.(Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return nil
}

// localEntries lists everything under point, keyed by path relative to it.
func (f *FS) localEntries(point string) (map[string]EntryMeta, error) {
	out := make(map[string]EntryMeta)
	err := afero.Walk(f.mem, point, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == point {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, point), "/")
		out[rel] = EntryMeta{Mode: info.Mode(), Mtime: info.ModTime().UnixNano()}
		return nil
	})
	return out, err
}
