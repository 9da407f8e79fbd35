package picker

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors a picked host folder and reports, debounced, that its
// contents changed.
type Watcher struct {
	root    string
	ignore  *Ignore
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for root on the host filesystem.
func NewWatcher(root string, ignore *Ignore) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    absRoot(root),
		ignore:  ignore,
		watcher: w,
	}, nil
}

// Start watches until ctx is cancelled, calling onChange once per burst
// of events with the number of distinct paths touched.
func (w *Watcher) Start(ctx context.Context, onChange func(changed int)) error {
	l := sub("watcher")
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	l.Info("watching", "root", w.root)

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if base == IgnoreFile || w.ignore.IsIgnored(base, false) {
				continue
			}
			if strings.HasPrefix(base, ".") {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(debounceInterval)

			if event.Has(fsnotify.Create) {
				// no-op for files
				w.watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", "err", err)

		case <-timer.C:
			if len(pending) > 0 {
				n := len(pending)
				pending = make(map[string]struct{})
				l.Info("changes settled", "paths", n)
				onChange(n)
			}
		}
	}
}

// addRecursive adds root and every non-hidden, non-ignored subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (strings.HasPrefix(d.Name(), ".") || w.ignore.IsIgnored(d.Name(), true)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
