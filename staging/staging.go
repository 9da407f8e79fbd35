// Package staging moves a user-picked directory tree into the virtual
// filesystem the game runtime reads: path handling, validation, the
// concurrent upload with its single flush, progress, and the lifecycle
// that ties them together.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/vfs"
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

var (
	// ErrInvalidState is returned when an action is not allowed in the
	// controller's current state.
	ErrInvalidState = errors.New("invalid state for this action")

	// ErrNotConfirmed is returned by Wipe when the user declines.
	ErrNotConfirmed = errors.New("wipe not confirmed")

	// ErrInvalidPath is returned for relative paths that cannot be staged.
	ErrInvalidPath = errors.New("invalid relative path")

	// ErrFlush wraps a failed durable sync after a batch.
	ErrFlush = errors.New("flush failed")
)

// FileSystem is the set of virtual filesystem operations staging needs.
// *vfs.FS implements it.
type FileSystem interface {
	Mkdir(name string) error
	Lookup(name string) (vfs.Node, error)
	Stat(name string) (fs.FileMode, error)
	Readdir(name string) ([]string, error)
	Unlink(name string) error
	Rmdir(name string) error
	WriteFile(name string, data []byte) error
	Sync(ctx context.Context, populate bool) error
}

// MountableFS is a FileSystem that can attach a durable backend.
type MountableFS interface {
	FileSystem
	Mount(backend vfs.Backend, mountPoint string) error
}
