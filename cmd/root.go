package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fheroes2/webstage/config"
	"github.com/fheroes2/webstage/logging"
)

var (
	cfg     *config.Config
	cfgFile string
	v       = config.NewViper()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webstage",
	Short: "Stage fheroes2 game data into a persisted virtual filesystem",
	Long: `webstage copies a user's Heroes of Might and Magic II data folder into
the virtual filesystem the fheroes2 runtime reads from, persists it, and
starts the game once the data is in place.

Usage:
  Stage a folder:    webstage stage ~/games/HOMM2
  Keep it in sync:   webstage watch ~/games/HOMM2
  Serve the web UI:  webstage serve
  Start the game:    webstage run`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		logging.Init(cfg.LogDir, logging.ParseLevel(cfg.LogLevel))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.webstage.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-dir", "", "directory for rotated log files")
	pf.String("backend", "local", "durable store: local, sqlite, s3, memory")
	pf.String("backend-path", "", "store directory (local) or database file (sqlite)")
	pf.Int("concurrency", 0, "maximum simultaneous file reads")

	bindFlags(pf, map[string]string{
		"log-level":    "log_level",
		"log-dir":      "log_dir",
		"backend":      "backend.type",
		"backend-path": "backend.path",
		"concurrency":  "concurrency",
	})
}

// bindFlags binds flags to config keys so a set flag overrides env and
// file values.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		v.BindPFlag(key, fs.Lookup(flag)) //nolint:errcheck
	}
}

// initConfig reads in config file and ENV variables
func initConfig() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			logging.Sub("cmd").Warn("could not find home directory", "err", err)
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".webstage")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals
func createContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
