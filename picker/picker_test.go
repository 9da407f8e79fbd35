package picker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fheroes2/webstage/staging"
)

func writeTree(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fsys, p, []byte(content), 0o644))
	}
}

func relPaths(files []staging.PickedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelativePath
	}
	sort.Strings(out)
	return out
}

func TestPick_RelativeToPickedFolder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, map[string]string{
		"/games/HOMM2/data/HEROES2.AGG":  "agg",
		"/games/HOMM2/data/HEROES2X.AGG": "aggx",
		"/games/HOMM2/maps/x/a.mp2":      "map",
		"/games/HOMM2/.DS_Store":         "junk",
		"/games/other/ignored.txt":       "no",
	})

	files, err := Pick(context.Background(), fsys, "/games/HOMM2")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"HOMM2/.DS_Store",
		"HOMM2/data/HEROES2.AGG",
		"HOMM2/data/HEROES2X.AGG",
		"HOMM2/maps/x/a.mp2",
	}, relPaths(files))

	for _, f := range files {
		if f.RelativePath != "HOMM2/data/HEROES2.AGG" {
			continue
		}
		assert.Equal(t, int64(3), f.Size)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "agg", string(data))
	}
}

func TestPick_IgnoreFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, map[string]string{
		"/g/HOMM2/.stageignore":         "# comments are skipped\n*.bak\nsaves/\n",
		"/g/HOMM2/data/HEROES2.AGG":     "a",
		"/g/HOMM2/data/HEROES2.AGG.bak": "b",
		"/g/HOMM2/saves/slot1.sav":      "s",
		"/g/HOMM2/maps/saves":           "a file named saves",
	})

	files, err := Pick(context.Background(), fsys, "/g/HOMM2")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"HOMM2/data/HEROES2.AGG",
		"HOMM2/maps/saves",
	}, relPaths(files))
}

func TestPick_SingleFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, map[string]string{"/dl/heroes2.zip": "PK\x03\x04 not really a zip"})

	files, err := Pick(context.Background(), fsys, "/dl/heroes2.zip")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "heroes2.zip", files[0].RelativePath)

	_, err = staging.Validate(files, staging.DefaultRules())
	var rej *staging.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, staging.ReasonArchive, rej.Reason)
}

func TestPick_DotRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "HOMM2")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "maps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "maps", "a.mp2"), []byte("map"), 0o644))
	t.Chdir(root)

	files, err := Pick(context.Background(), afero.NewOsFs(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"HOMM2/maps/a.mp2"}, relPaths(files))

	dir, file, err := staging.Destination("/fheroes2/data", files[0].RelativePath)
	require.NoError(t, err)
	assert.Equal(t, "/fheroes2/data/maps", dir)
	assert.Equal(t, "/fheroes2/data/maps/a.mp2", file)
}

func TestPick_Missing(t *testing.T) {
	_, err := Pick(context.Background(), afero.NewMemMapFs(), "/nope")
	assert.Error(t, err)
}

func TestIgnore_Patterns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, map[string]string{"/.stageignore": "*.tmp\ncache/\n"})
	ig := LoadIgnore(fsys, "/.stageignore")

	assert.True(t, ig.IsIgnored("x.tmp", false))
	assert.True(t, ig.IsIgnored("cache", true))
	assert.False(t, ig.IsIgnored("cache", false))
	assert.False(t, ig.IsIgnored("x.agg", false))
	assert.True(t, ig.IsIgnored(IgnoreFile, false))

	var none *Ignore
	assert.False(t, none.IsIgnored("x.tmp", false))
	assert.False(t, LoadIgnore(fsys, "/missing").IsIgnored("x.tmp", false))
}
