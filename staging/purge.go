package staging

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fheroes2/webstage/metrics"
)

// PurgeStatus summarizes a PurgeResult.
type PurgeStatus string

const (
	PurgeComplete PurgeStatus = "complete"
	PurgeMissing  PurgeStatus = "missing" // target did not exist
	PurgePartial  PurgeStatus = "partial" // some nodes removed, some failed
	PurgeFailed   PurgeStatus = "failed"  // nothing removed
)

// PurgeResult reports what a best-effort Purge did. Removed lists paths in
// removal order, children before their directory.
type PurgeResult struct {
	Removed []string
	Errors  []error
	Missing bool
}

// Status classifies the result.
func (r PurgeResult) Status() PurgeStatus {
	switch {
	case r.Missing:
		return PurgeMissing
	case len(r.Errors) == 0:
		return PurgeComplete
	case len(r.Removed) > 0:
		return PurgePartial
	default:
		return PurgeFailed
	}
}

// Err joins every collected error, nil when there were none.
func (r PurgeResult) Err() error {
	return errors.Join(r.Errors...)
}

// Purge removes dir and everything below it, node by node. It never
// stops early: failures are collected and the rest of the tree is still
// attempted. A missing dir is reported, not treated as an error.
func Purge(fsys FileSystem, dir string) PurgeResult {
	var r PurgeResult
	if _, err := fsys.Lookup(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.Missing = true
		} else {
			r.Errors = append(r.Errors, err)
		}
		return r
	}
	purge(fsys, dir, &r)
	metrics.RecordPurge(len(r.Removed))

	l := sub("purge")
	if len(r.Errors) > 0 {
		l.Warn("purge incomplete", "dir", dir, "removed", len(r.Removed), "errors", len(r.Errors), "err", r.Err())
	} else {
		l.Info("purged", "dir", dir, "removed", len(r.Removed))
	}
	return r
}

func purge(fsys FileSystem, dir string, r *PurgeResult) {
	children, err := fsys.Readdir(dir)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Errorf("readdir %s: %w", dir, err))
		return
	}
	for _, name := range children {
		child := Join(dir, name)
		mode, err := fsys.Stat(child)
		if err != nil {
			r.Errors = append(r.Errors, err)
			continue
		}
		if mode&fs.ModeType == fs.ModeDir {
			purge(fsys, child, r)
			continue
		}
		if err := fsys.Unlink(child); err != nil {
			r.Errors = append(r.Errors, err)
			continue
		}
		r.Removed = append(r.Removed, child)
	}
	if err := fsys.Rmdir(dir); err != nil {
		r.Errors = append(r.Errors, err)
		return
	}
	r.Removed = append(r.Removed, dir)
}
