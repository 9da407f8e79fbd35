package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fheroes2/webstage/gamehost"
	"github.com/fheroes2/webstage/staging"
)

var errNothingStaged = errors.New("no game data staged; run `webstage stage <dir>` first")

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [-- game args]",
	Short: "Start the game against the staged data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		if cfg.Game.Wasm == "" {
			return errors.New("game.wasm is not configured")
		}
		wasm, err := os.ReadFile(cfg.Game.Wasm)
		if err != nil {
			return fmt.Errorf("read game module: %w", err)
		}

		a, err := createApp(ctx, newBarIndicator("Loading"))
		if err != nil {
			return err
		}
		defer a.close() //nolint:errcheck

		host := newHost(a, append(append([]string(nil), cfg.Game.Args...), args...))
		host.PreRun = []gamehost.Hook{
			a.ctrl.Bootstrap,
			func(context.Context) error {
				if a.ctrl.State() != staging.Ready {
					return errNothingStaged
				}
				return a.ctrl.Start()
			},
		}
		return host.Run(ctx, wasm)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func newHost(a *app, args []string) *gamehost.Host {
	return &gamehost.Host{
		Tree:       a.fs,
		MountPoint: cfg.MountPoint,
		DataDir:    cfg.DataPath(),
		Args:       args,
		Deps:       a.deps,
		Status:     a.ctrl.SetStatus,
		Stderr:     os.Stderr,
	}
}
