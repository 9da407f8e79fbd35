package vfs

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapBackend is a minimal in-memory Backend for exercising reconcile.
type mapBackend struct {
	mu      sync.Mutex
	meta    map[string]EntryMeta
	content map[string][]byte
	puts    []string
	deletes []string
	commits int
	listErr error
}

func newMapBackend() *mapBackend {
	return &mapBackend{meta: map[string]EntryMeta{}, content: map[string][]byte{}}
}

func (b *mapBackend) List(context.Context) (map[string]EntryMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make(map[string]EntryMeta, len(b.meta))
	for k, v := range b.meta {
		out[k] = v
	}
	return out, nil
}

func (b *mapBackend) Load(_ context.Context, p string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.content[p]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (b *mapBackend) Put(_ context.Context, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta[e.Path] = e.EntryMeta
	if !e.IsDir() {
		b.content[e.Path] = e.Content
	}
	b.puts = append(b.puts, e.Path)
	return nil
}

func (b *mapBackend) Delete(_ context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.meta, p)
	delete(b.content, p)
	b.deletes = append(b.deletes, p)
	return nil
}

func (b *mapBackend) Commit(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commits++
	return nil
}

func TestMkdir_RequiresParent(t *testing.T) {
	f := New()

	err := f.Mkdir("/a/b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, f.Mkdir("/a"))
	require.NoError(t, f.Mkdir("/a/b"))

	err = f.Mkdir("/a/b")
	assert.True(t, errors.Is(err, fs.ErrExist))
}

func TestMkdir_ParentIsFile(t *testing.T) {
	f := New()
	require.NoError(t, f.WriteFile("/file", []byte("x")))

	err := f.Mkdir("/file/sub")
	assert.True(t, errors.Is(err, ErrNotDir))

	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "mkdir", pe.Op)
	assert.Equal(t, "/file/sub", pe.Path)
}

func TestLookupAndStat(t *testing.T) {
	f := New()
	require.NoError(t, f.Mkdir("/d"))
	require.NoError(t, f.WriteFile("/d/x.dat", []byte("hello")))

	node, err := f.Lookup("/d/x.dat")
	require.NoError(t, err)
	assert.False(t, node.IsDir())
	assert.Equal(t, int64(5), node.Size)

	mode, err := f.Stat("/d")
	require.NoError(t, err)
	assert.Equal(t, fs.ModeDir, mode&fs.ModeType)

	_, err = f.Lookup("/missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReaddir_Sorted(t *testing.T) {
	f := New()
	require.NoError(t, f.Mkdir("/d"))
	require.NoError(t, f.WriteFile("/d/b", nil))
	require.NoError(t, f.Mkdir("/d/a"))
	require.NoError(t, f.WriteFile("/d/c", nil))

	names, err := f.Readdir("/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, err = f.Readdir("/d/b")
	assert.True(t, errors.Is(err, ErrNotDir))
}

func TestUnlinkAndRmdir(t *testing.T) {
	f := New()
	require.NoError(t, f.Mkdir("/d"))
	require.NoError(t, f.WriteFile("/d/x", []byte("1")))

	assert.True(t, errors.Is(f.Unlink("/d"), ErrIsDir))
	assert.True(t, errors.Is(f.Rmdir("/d"), ErrNotEmpty))
	assert.True(t, errors.Is(f.Rmdir("/d/x"), ErrNotDir))

	require.NoError(t, f.Unlink("/d/x"))
	require.NoError(t, f.Rmdir("/d"))

	_, err := f.Lookup("/d")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, errors.Is(f.Unlink("/d/x"), fs.ErrNotExist))
}

func TestWriteFile_RequiresParent(t *testing.T) {
	f := New()
	err := f.WriteFile("/nope/x", []byte("1"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMount_RequiresDirectory(t *testing.T) {
	f := New()
	b := newMapBackend()

	assert.True(t, errors.Is(f.Mount(b, "/fheroes2"), fs.ErrNotExist))
	require.NoError(t, f.Mkdir("/fheroes2"))
	require.NoError(t, f.Mount(b, "/fheroes2"))
	assert.True(t, errors.Is(f.Mount(b, "/fheroes2"), fs.ErrExist))
}

func TestSync_NotMounted(t *testing.T) {
	f := New()
	assert.ErrorIs(t, f.Sync(context.Background(), false), ErrNotMounted)
}

func TestSync_PersistThenPopulateRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newMapBackend()

	f := New()
	require.NoError(t, f.Mkdir("/m"))
	require.NoError(t, f.Mount(b, "/m"))
	require.NoError(t, f.Mkdir("/m/data"))
	require.NoError(t, f.Mkdir("/m/data/maps"))
	require.NoError(t, f.WriteFile("/m/data/HEROES2.AGG", []byte("agg")))
	require.NoError(t, f.WriteFile("/m/data/maps/a.mp2", []byte("map")))
	assert.True(t, f.Dirty())

	require.NoError(t, f.Sync(ctx, false))
	assert.False(t, f.Dirty())
	assert.Equal(t, 1, b.commits)
	assert.Contains(t, b.meta, "data")
	assert.Contains(t, b.meta, "data/maps/a.mp2")
	assert.Equal(t, []byte("agg"), b.content["data/HEROES2.AGG"])

	// Parents are persisted before children.
	assert.Less(t, indexOf(b.puts, "data"), indexOf(b.puts, "data/maps"))
	assert.Less(t, indexOf(b.puts, "data/maps"), indexOf(b.puts, "data/maps/a.mp2"))

	// A fresh filesystem pulls everything back.
	g := New()
	require.NoError(t, g.Mkdir("/m"))
	require.NoError(t, g.Mount(b, "/m"))
	require.NoError(t, g.Sync(ctx, true))

	names, err := g.Readdir("/m/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"HEROES2.AGG", "maps"}, names)

	// Nothing changed, so a persist sends no files.
	b.puts = nil
	require.NoError(t, g.Sync(ctx, false))
	for _, p := range b.puts {
		assert.NotEqual(t, "data/HEROES2.AGG", p, "unchanged file must not be re-sent")
	}
}

func TestSync_PersistRemovesChildrenFirst(t *testing.T) {
	ctx := context.Background()
	b := newMapBackend()
	f := New()
	require.NoError(t, f.Mkdir("/m"))
	require.NoError(t, f.Mount(b, "/m"))
	require.NoError(t, f.Mkdir("/m/data"))
	require.NoError(t, f.Mkdir("/m/data/a"))
	require.NoError(t, f.WriteFile("/m/data/a/x.dat", []byte("x")))
	require.NoError(t, f.Sync(ctx, false))

	require.NoError(t, f.Unlink("/m/data/a/x.dat"))
	require.NoError(t, f.Rmdir("/m/data/a"))
	require.NoError(t, f.Rmdir("/m/data"))
	require.NoError(t, f.Sync(ctx, false))

	assert.Equal(t, []string{"data/a/x.dat", "data/a", "data"}, b.deletes)
	assert.Empty(t, b.meta)
}

func TestSync_PopulateDropsLocalOnlyEntries(t *testing.T) {
	ctx := context.Background()
	b := newMapBackend()
	f := New()
	require.NoError(t, f.Mkdir("/m"))
	require.NoError(t, f.Mount(b, "/m"))
	require.NoError(t, f.WriteFile("/m/stray", []byte("s")))

	require.NoError(t, f.Sync(ctx, true))
	_, err := f.Lookup("/m/stray")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestSync_ListErrorSurfaces(t *testing.T) {
	b := newMapBackend()
	b.listErr = errors.New("backend offline")
	f := New()
	require.NoError(t, f.Mkdir("/m"))
	require.NoError(t, f.Mount(b, "/m"))

	err := f.Sync(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend offline")
}

func TestIOFS_ReadsSubtree(t *testing.T) {
	f := New()
	require.NoError(t, f.Mkdir("/m"))
	require.NoError(t, f.Mkdir("/m/data"))
	require.NoError(t, f.WriteFile("/m/data/x.dat", []byte("payload")))

	data, err := fs.ReadFile(f.IOFS("/m"), "data/x.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
