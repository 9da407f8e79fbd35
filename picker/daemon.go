package picker

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/fheroes2/webstage/staging"
)

// Daemon keeps a staged tree in step with a host folder: bootstrap,
// initial stage, then a restage after every settled burst of changes.
type Daemon struct {
	ctrl    *staging.Controller
	fsys    afero.Fs
	root    string
	restage chan struct{}
}

// NewDaemon creates a daemon staging root (on the host filesystem) through
// ctrl.
func NewDaemon(ctrl *staging.Controller, root string) *Daemon {
	return &Daemon{
		ctrl:    ctrl,
		fsys:    afero.NewOsFs(),
		root:    absRoot(root),
		restage: make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled or setup fails.
func (d *Daemon) Run(ctx context.Context) error {
	l := sub("daemon")
	l.Info("stage daemon starting", "root", d.root)

	// Phase 1: bootstrap
	if d.ctrl.State() == staging.Bootstrapping {
		if err := d.ctrl.Bootstrap(ctx); err != nil {
			l.Error("bootstrap failed, daemon aborting", "err", err)
			return err
		}
	}

	// Phase 2: initial stage when nothing is staged yet
	if d.ctrl.State() == staging.AwaitingSelection {
		d.request()
	}

	// Phase 3: watcher in background
	watcher, err := NewWatcher(d.root, LoadIgnore(d.fsys, filepath.Join(d.root, IgnoreFile)))
	if err != nil {
		l.Error("watcher creation failed, daemon aborting", "err", err)
		return err
	}
	defer watcher.Close()

	go func() {
		if err := watcher.Start(ctx, func(int) { d.request() }); err != nil && ctx.Err() == nil {
			l.Warn("watcher stopped unexpectedly", "err", err)
		}
	}()

	// Phase 4: worker loop
	l.Info("worker loop started")
	for {
		select {
		case <-ctx.Done():
			l.Info("stage daemon stopped")
			return nil
		case <-d.restage:
			d.stage(ctx)
		}
	}
}

// request coalesces restage requests.
func (d *Daemon) request() {
	select {
	case d.restage <- struct{}{}:
	default:
	}
}

func (d *Daemon) stage(ctx context.Context) {
	l := sub("daemon")

	switch d.ctrl.State() {
	case staging.Running:
		l.Warn("game running, restage skipped")
		return
	case staging.Ready:
		if _, err := d.ctrl.Wipe(ctx, nil); err != nil {
			l.Error("wipe before restage failed", "err", err)
			return
		}
	}

	files, err := Pick(ctx, d.fsys, d.root)
	if err != nil {
		l.Error("pick failed", "root", d.root, "err", err)
		return
	}
	res, err := d.ctrl.Select(ctx, files)
	var rej *staging.Rejection
	switch {
	case errors.As(err, &rej):
		l.Warn("selection rejected", "reason", rej.Reason, "message", rej.Message)
	case err != nil:
		if ctx.Err() == nil {
			l.Error("stage failed", "err", err)
		}
	default:
		l.Info("staged", "files", res.Files, "bytes", res.Bytes, "elapsed", res.Elapsed)
	}
}
