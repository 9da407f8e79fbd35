// Package picker plays the part of the directory-picker control on a host
// machine: it turns a local folder into a selection, and can watch it
// for changes and restage.
package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/spf13/afero"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/staging"
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// IgnoreFile is read from the picked folder's root.
const IgnoreFile = ".stageignore"

// Pick scans root on fsys and returns it as a selection. Relative paths
// begin with root's own name, the way a browser folder picker reports
// them. Picking a regular file yields a one-file selection.
func Pick(ctx context.Context, fsys afero.Fs, root string) ([]staging.PickedFile, error) {
	l := sub("picker")
	root = absRoot(root)

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		identify(ctx, fsys, root)
		return []staging.PickedFile{pickedFile(fsys, root, info.Name(), info.Size())}, nil
	}

	ignore := LoadIgnore(fsys, filepath.Join(root, IgnoreFile))
	base := filepath.Base(root)
	var files []staging.PickedFile

	err = afero.Walk(fsys, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			l.Warn("pick walk error", "path", p, "err", err)
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if ignore.IsIgnored(info.Name(), info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, pickedFile(fsys, p, path.Join(base, filepath.ToSlash(rel)), info.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("picked", "root", root, "files", len(files))
	return files, nil
}

// absRoot resolves root so that its base name is the folder's own name
// even when given as "." or "..".
func absRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

func pickedFile(fsys afero.Fs, hostPath, rel string, size int64) staging.PickedFile {
	return staging.PickedFile{
		RelativePath: rel,
		Size:         size,
		Open: func() (io.ReadCloser, error) {
			return fsys.Open(hostPath)
		},
	}
}

// identify logs what kind of archive a lone picked file is, for the
// "archives unsupported" diagnostics.
func identify(ctx context.Context, fsys afero.Fs, name string) {
	l := sub("picker")
	f, err := fsys.Open(name)
	if err != nil {
		return
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(name), f)
	switch {
	case errors.Is(err, archives.NoMatch):
		l.Info("single file picked", "path", name, "archive", false)
	case err != nil:
		l.Warn("identify failed", "path", name, "err", err)
	default:
		l.Info("single file picked", "path", name, "archive", true, "format", strings.TrimPrefix(format.Extension(), "."))
	}
}
