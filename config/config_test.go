package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fheroes2/webstage/staging"
	"github.com/fheroes2/webstage/store"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "/fheroes2", cfg.MountPoint)
	assert.Equal(t, "/fheroes2/data", cfg.DataPath())
	assert.Equal(t, staging.DefaultMaxFiles, cfg.MaxFiles)
	assert.Equal(t, staging.DefaultRequiredFiles, cfg.RequiredFiles)
	assert.Equal(t, staging.DefaultAllowedDirs, cfg.AllowedDirs)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, store.TypeLocal, cfg.Backend.Type)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".webstage", "store"), cfg.Backend.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEBSTAGE_MAX_FILES", "10")
	t.Setenv("WEBSTAGE_BACKEND_TYPE", "s3")
	t.Setenv("WEBSTAGE_BACKEND_S3_BUCKET", "saves")
	t.Setenv("WEBSTAGE_ALLOWED_DIRS", "data,maps")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, store.TypeS3, cfg.Backend.Type)
	assert.Equal(t, "saves", cfg.Backend.S3.Bucket)
	assert.Equal(t, []string{"data", "maps"}, cfg.AllowedDirs)
	assert.Equal(t, 10, cfg.Rules().MaxFiles)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "webstage.yaml")
	require.NoError(t, os.WriteFile(file, []byte(strings.Join([]string{
		"mount_point: /game",
		"data_dir: assets",
		"concurrency: 2",
		"backend:",
		"  type: sqlite",
		"  path: " + filepath.Join(dir, "stage.db"),
		"game:",
		"  wasm: " + filepath.Join(dir, "fheroes2.wasm"),
		"  args: [--debug]",
	}, "\n")), 0o644))

	v := NewViper()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/game/assets", cfg.DataPath())
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, store.Options{Type: store.TypeSQLite, Path: filepath.Join(dir, "stage.db")}, cfg.StoreOptions())
	assert.Equal(t, []string{"--debug"}, cfg.Game.Args)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"relative mount", func(c *Config) { c.MountPoint = "fheroes2" }, ErrInvalidMountPoint},
		{"root mount", func(c *Config) { c.MountPoint = "/" }, ErrInvalidMountPoint},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, ErrInvalidDataDir},
		{"escaping data dir", func(c *Config) { c.DataDir = "../x" }, ErrInvalidDataDir},
		{"zero max files", func(c *Config) { c.MaxFiles = 0 }, ErrInvalidMaxFiles},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"no required", func(c *Config) { c.RequiredFiles = nil }, ErrNoRequiredFiles},
		{"unknown backend", func(c *Config) { c.Backend.Type = "ftp" }, ErrInvalidBackend},
		{"local without path", func(c *Config) { c.Backend.Path = "" }, ErrMissingBackendPath},
		{"s3 without bucket", func(c *Config) { c.Backend.Type = store.TypeS3 }, ErrMissingBucket},
		{"memory", func(c *Config) { c.Backend = BackendConfig{Type: store.TypeMemory} }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
