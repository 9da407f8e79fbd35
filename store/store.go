// Package store provides the durable backends a vfs mount point reconciles
// against: a host directory, a SQLite database, an S3 bucket, and an
// in-memory map.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/vfs"
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// Backend types accepted by Open.
const (
	TypeLocal  = "local"
	TypeSQLite = "sqlite"
	TypeS3     = "s3"
	TypeMemory = "memory"
)

// Inspector is implemented by backends that can report what they hold
// and when they were last persisted.
type Inspector interface {
	LastCommit(ctx context.Context) (time.Time, error)
	Usage(ctx context.Context) (entries int, bytes int64, err error)
}

var _ Inspector = (*SQLite)(nil)

// Options selects and configures a backend.
type Options struct {
	Type string
	// Path is the directory (local) or database file (sqlite).
	Path string
	S3   S3Config
}

// Open builds the backend described by opts. The returned close function
// releases any handles and is never nil.
func Open(ctx context.Context, opts Options) (vfs.Backend, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(opts.Type) {
	case TypeLocal, "":
		b, err := NewLocal(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case TypeSQLite:
		b, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case TypeS3:
		b, err := NewS3(ctx, opts.S3)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case TypeMemory:
		return NewMemory(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown backend type %q", opts.Type)
	}
}

// key turns a backend entry path into a stable, slash-separated key.
func key(p string) string {
	return strings.Trim(p, "/")
}
