// Package gamehost runs the staged game as a WASI module once its run
// dependencies clear, with the staged tree mounted where the game expects
// its data.
package gamehost

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/fheroes2/webstage/logging"
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// ModuleName is the guest's program name (argv[0]).
const ModuleName = "fheroes2"

// Hook runs before the game, in order. A hook is where run dependencies
// get added.
type Hook func(ctx context.Context) error

// Tree exposes a directory of the staged filesystem read-only.
type Tree interface {
	IOFS(root string) fs.FS
}

// Host wires the game module to the staged tree.
type Host struct {
	Tree       Tree
	MountPoint string // guest path and HOME, e.g. /fheroes2
	DataDir    string // FHEROES2_DATA, e.g. /fheroes2/data
	Args       []string
	Deps       *Dependencies // optional
	PreRun     []Hook

	// Status receives each stdout line, like the runtime's setStatus.
	Status func(text string)
	Stderr io.Writer
}

// Run executes the pre-run hooks, waits for the run dependencies, then
// instantiates wasm. A clean exit (code 0, or a module without _start)
// returns nil.
func (h *Host) Run(ctx context.Context, wasm []byte) error {
	l := sub("host")

	for i, hook := range h.PreRun {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("pre-run hook %d: %w", i, err)
		}
	}
	if h.Deps != nil {
		if pending := h.Deps.Pending(); len(pending) > 0 {
			l.Info("waiting for run dependencies", "pending", pending)
		}
		if err := h.Deps.Wait(ctx); err != nil {
			return err
		}
	}

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx) //nolint:errcheck
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile game module: %w", err)
	}

	stdout := newLineWriter(h.Status)
	defer stdout.Flush()
	stderr := h.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	cfg := wazero.NewModuleConfig().
		WithName(ModuleName).
		WithArgs(append([]string{ModuleName}, h.Args...)...).
		WithEnv("HOME", h.MountPoint).
		WithEnv("FHEROES2_DATA", h.DataDir).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(h.Tree.IOFS(h.MountPoint), h.MountPoint)).
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime()

	l.Info("game starting", "mount", h.MountPoint, "data", h.DataDir, "args", h.Args)
	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		var exit *sys.ExitError
		if errors.As(err, &exit) {
			if exit.ExitCode() == 0 {
				l.Info("game exited")
				return nil
			}
			return fmt.Errorf("game exited with code %d: %w", exit.ExitCode(), err)
		}
		return fmt.Errorf("instantiate game module: %w", err)
	}
	l.Info("game exited")
	return mod.Close(ctx)
}

// lineWriter splits guest output into lines for the status callback.
type lineWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	status func(string)
}

func newLineWriter(status func(string)) *lineWriter {
	if status == nil {
		status = func(string) {}
	}
	return &lineWriter{status: status}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line; keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(line)
	}
}

// Flush emits a trailing unterminated line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	sc := bufio.NewScanner(&w.buf)
	for sc.Scan() {
		w.emit(sc.Text())
	}
	w.buf.Reset()
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	if logging.Enabled(slog.LevelDebug) {
		sub("host").Debug("game status", "line", line)
	}
	w.status(line)
}
