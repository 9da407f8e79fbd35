// Package config loads webstage settings from defaults, an optional YAML
// file, WEBSTAGE_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/fheroes2/webstage/staging"
	"github.com/fheroes2/webstage/store"
)

var (
	ErrInvalidMountPoint  = errors.New("mount point must be an absolute path")
	ErrInvalidDataDir     = errors.New("data dir must be a non-empty relative path")
	ErrInvalidMaxFiles    = errors.New("max files must be greater than 0")
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	ErrNoRequiredFiles    = errors.New("at least one required file must be set")
	ErrInvalidBackend     = errors.New("unknown backend type")
	ErrMissingBackendPath = errors.New("backend path must be set for local and sqlite backends")
	ErrMissingBucket      = errors.New("s3 bucket must be set")
)

// EnvPrefix prefixes every environment override, e.g. WEBSTAGE_LISTEN.
const EnvPrefix = "WEBSTAGE"

// Config holds all application configuration.
type Config struct {
	MountPoint    string        `mapstructure:"mount_point" json:"mount_point" yaml:"mount_point"`
	DataDir       string        `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	MaxFiles      int           `mapstructure:"max_files" json:"max_files" yaml:"max_files"`
	RequiredFiles []string      `mapstructure:"required_files" json:"required_files" yaml:"required_files"`
	AllowedDirs   []string      `mapstructure:"allowed_dirs" json:"allowed_dirs" yaml:"allowed_dirs"`
	Concurrency   int           `mapstructure:"concurrency" json:"concurrency" yaml:"concurrency"`
	LogDir        string        `mapstructure:"log_dir" json:"log_dir" yaml:"log_dir"`
	LogLevel      string        `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	Listen        string        `mapstructure:"listen" json:"listen" yaml:"listen"`
	Backend       BackendConfig `mapstructure:"backend" json:"backend" yaml:"backend"`
	Game          GameConfig    `mapstructure:"game" json:"game" yaml:"game"`
}

// BackendConfig selects the durable store behind the mount point.
type BackendConfig struct {
	Type string         `mapstructure:"type" json:"type" yaml:"type"`
	Path string         `mapstructure:"path" json:"path" yaml:"path"`
	S3   store.S3Config `mapstructure:"s3" json:"s3" yaml:"s3"`
}

// GameConfig describes the module the runtime host starts.
type GameConfig struct {
	Wasm string   `mapstructure:"wasm" json:"wasm" yaml:"wasm"`
	Args []string `mapstructure:"args" json:"args" yaml:"args"`
}

// NewDefaultConfig returns a configuration with the fheroes2 defaults.
func NewDefaultConfig() *Config {
	return &Config{
		MountPoint:    "/fheroes2",
		DataDir:       "data",
		MaxFiles:      staging.DefaultMaxFiles,
		RequiredFiles: append([]string(nil), staging.DefaultRequiredFiles...),
		AllowedDirs:   append([]string(nil), staging.DefaultAllowedDirs...),
		Concurrency:   staging.DefaultConcurrency,
		LogLevel:      "info",
		Listen:        ":8080",
		Backend: BackendConfig{
			Type: store.TypeLocal,
			Path: "~/.webstage/store",
		},
	}
}

// SetDefaults registers every default on v so env vars and config files
// can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("mount_point", d.MountPoint)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("max_files", d.MaxFiles)
	v.SetDefault("required_files", d.RequiredFiles)
	v.SetDefault("allowed_dirs", d.AllowedDirs)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("backend.type", d.Backend.Type)
	v.SetDefault("backend.path", d.Backend.Path)
	v.SetDefault("backend.s3.endpoint", "")
	v.SetDefault("backend.s3.bucket", "")
	v.SetDefault("backend.s3.prefix", "")
	v.SetDefault("backend.s3.region", "")
	v.SetDefault("backend.s3.access_key", "")
	v.SetDefault("backend.s3.secret_key", "")
	v.SetDefault("game.wasm", "")
	v.SetDefault("game.args", []string{})
}

// NewViper returns a viper instance with defaults and environment
// overrides (WEBSTAGE_BACKEND_TYPE for backend.type, and so on).
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes v into a Config, expands ~ in host paths and validates
// the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.LogDir, &c.Backend.Path, &c.Game.Wasm} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if !path.IsAbs(c.MountPoint) || path.Clean(c.MountPoint) == "/" {
		return ErrInvalidMountPoint
	}
	if d := strings.Trim(c.DataDir, "/"); d == "" || d == "." || strings.HasPrefix(path.Clean(d), "..") {
		return ErrInvalidDataDir
	}
	if c.MaxFiles <= 0 {
		return ErrInvalidMaxFiles
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if len(c.RequiredFiles) == 0 {
		return ErrNoRequiredFiles
	}
	switch c.Backend.Type {
	case store.TypeLocal, store.TypeSQLite:
		if c.Backend.Path == "" {
			return ErrMissingBackendPath
		}
	case store.TypeS3:
		if c.Backend.S3.Bucket == "" {
			return ErrMissingBucket
		}
	case store.TypeMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend.Type)
	}
	return nil
}

// DataPath is the absolute staging root inside the virtual filesystem.
func (c *Config) DataPath() string {
	return staging.Join(c.MountPoint, c.DataDir)
}

// Rules returns the selection rules.
func (c *Config) Rules() staging.Rules {
	return staging.Rules{
		MaxFiles:      c.MaxFiles,
		RequiredFiles: c.RequiredFiles,
		AllowedDirs:   c.AllowedDirs,
	}
}

// StoreOptions returns the backend options for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Type: c.Backend.Type,
		Path: c.Backend.Path,
		S3:   c.Backend.S3,
	}
}
