package vfs

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotEmpty is returned by Rmdir on a directory with children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrIsDir is returned when a file operation targets a directory.
	ErrIsDir = errors.New("is a directory")

	// ErrNotDir is returned when a directory operation targets a file.
	ErrNotDir = errors.New("not a directory")

	// ErrNotMounted is returned by Sync when no backend is mounted.
	ErrNotMounted = errors.New("no backend mounted")
)

// PathError wraps a filesystem failure with the operation and the path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func pathErr(op, path string, err error) error {
	// afero already returns *fs.PathError; keep the innermost cause so
	// errors.Is works against fs.ErrExist / fs.ErrNotExist either way.
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return &PathError{Op: op, Path: path, Err: err}
}
