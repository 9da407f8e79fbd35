package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fheroes2/webstage/server"
	"github.com/fheroes2/webstage/store"
)

type ServeFlags struct {
	Listen string
	Game   bool
}

var serveFlags ServeFlags

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the staging API and event stream",
	Long: `Serve exposes the staging pipeline over HTTP:

  GET    /api/status     state, staged files, disk usage, recent errors
  POST   /api/selection  multipart path/file pairs from the folder picker
  POST   /api/start      release the game
  DELETE /api/files      wipe staged data (?confirm=true)
  GET    /api/events     websocket event stream
  GET    /metrics        prometheus metrics

With --game the configured module is started once /api/start is called.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		a, err := createApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.close() //nolint:errcheck

		listen := cfg.Listen
		if serveFlags.Listen != "" {
			listen = serveFlags.Listen
		}
		diskPath := ""
		if cfg.Backend.Type == store.TypeLocal || cfg.Backend.Type == store.TypeSQLite {
			diskPath = cfg.Backend.Path
		}

		var wasm []byte
		if serveFlags.Game {
			if wasm, err = os.ReadFile(cfg.Game.Wasm); err != nil {
				return fmt.Errorf("read game module: %w", err)
			}
		}

		// Bootstrap before listening so the first request sees a settled state.
		if err := a.ctrl.Bootstrap(ctx); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Serve(gctx, listen, server.NewRouter(server.NewHandlers(a.ctrl, diskPath)))
		})
		if serveFlags.Game {
			g.Go(func() error {
				// Bootstrap already holds the sync dependency; /api/start releases it.
				return newHost(a, cfg.Game.Args).Run(gctx, wasm)
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveFlags.Game, "game", false, "run the game module once started")
}
