package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fheroes2/webstage/store"
	"github.com/fheroes2/webstage/vfs"
)

const (
	testMount = "/fheroes2"
	testData  = "/fheroes2/data"
)

// countingFS wraps a vfs.FS and counts persisting syncs.
type countingFS struct {
	*vfs.FS
	persists atomic.Int32
	failSync error
}

func (c *countingFS) Sync(ctx context.Context, populate bool) error {
	if !populate {
		c.persists.Add(1)
		if c.failSync != nil {
			return c.failSync
		}
	}
	return c.FS.Sync(ctx, populate)
}

// newMountedFS returns a filesystem with a memory backend mounted at
// testMount and an empty data directory.
func newMountedFS(t *testing.T) (*countingFS, *store.Memory) {
	t.Helper()
	backend := store.NewMemory()
	fsys := &countingFS{FS: vfs.New()}
	require.NoError(t, fsys.Mkdir(testMount))
	require.NoError(t, fsys.Mount(backend, testMount))
	require.NoError(t, fsys.Mkdir(testData))
	return fsys, backend
}

func picked(rel, content string) PickedFile {
	return PickedFile{
		RelativePath: rel,
		Size:         int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func failing(rel string) PickedFile {
	return PickedFile{
		RelativePath: rel,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		},
	}
}

// gatedReader blocks its first Read until release is closed.
type gatedReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	r       io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.r.Read(p)
}

func (g *gatedReader) Close() error { return nil }

func gated(rel, content string) (PickedFile, *gatedReader) {
	g := &gatedReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       strings.NewReader(content),
	}
	return PickedFile{
		RelativePath: rel,
		Open:         func() (io.ReadCloser, error) { return g, nil },
	}, g
}

// gameSelection is a valid selection: both required files plus extras.
func gameSelection(extra ...PickedFile) []PickedFile {
	files := []PickedFile{
		picked("root/data/HEROES2.AGG", "agg"),
		picked("root/data/HEROES2X.AGG", "aggx"),
	}
	return append(files, extra...)
}

func manyFiles(n int) []PickedFile {
	files := gameSelection()
	for i := len(files); i < n; i++ {
		files = append(files, picked(fmt.Sprintf("root/maps/m%04d.mp2", i), "m"))
	}
	return files
}

type recordingIndicator struct {
	mu      sync.Mutex
	visible bool
	percent int
	calls   []string
}

func (r *recordingIndicator) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = true
	r.calls = append(r.calls, "show")
}

func (r *recordingIndicator) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
	r.calls = append(r.calls, "hide")
}

func (r *recordingIndicator) Set(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percent = p
	r.calls = append(r.calls, fmt.Sprintf("set:%d", p))
}

type fakeDeps struct {
	mu   sync.Mutex
	held map[string]int
}

func newFakeDeps() *fakeDeps { return &fakeDeps{held: map[string]int{}} }

func (d *fakeDeps) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held[id]++
}

func (d *fakeDeps) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held[id]--
}

func (d *fakeDeps) count(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held[id]
}
