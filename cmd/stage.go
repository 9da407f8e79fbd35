package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fheroes2/webstage/picker"
	"github.com/fheroes2/webstage/staging"
)

type StageFlags struct {
	Replace bool
}

var stageFlags StageFlags

// stageCmd represents the stage command
var stageCmd = &cobra.Command{
	Use:   "stage <dir>",
	Short: "Stage a game data folder",
	Long: `Stage copies the picked folder's data, heroes2, maps and music
subfolders into the virtual filesystem and persists them.

The folder must contain data/HEROES2.AGG and data/HEROES2X.AGG. A tree
that is already staged is left alone unless --replace is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, args[0], &stageFlags)
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.Flags().BoolVar(&stageFlags.Replace, "replace", false, "wipe an existing staged tree first")
}

func runStage(cmd *cobra.Command, dir string, flags *StageFlags) error {
	ctx, cancel := createContext()
	defer cancel()

	a, err := createApp(ctx, newBarIndicator("Staging"))
	if err != nil {
		return err
	}
	defer a.close() //nolint:errcheck

	if err := a.ctrl.Bootstrap(ctx); err != nil {
		return err
	}
	if a.ctrl.State() == staging.Ready {
		if !flags.Replace {
			fmt.Fprintln(cmd.OutOrStdout(), "game data already staged; use --replace to restage")
			return nil
		}
		if _, err := a.ctrl.Wipe(ctx, nil); err != nil {
			return err
		}
	}

	files, err := picker.Pick(ctx, afero.NewOsFs(), dir)
	if err != nil {
		return err
	}
	res, err := a.ctrl.Select(ctx, files)
	var rej *staging.Rejection
	if errors.As(err, &rej) {
		return errors.New(rej.Message)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "staged %d files (%d bytes) in %s\n", res.Files, res.Bytes, res.Elapsed.Round(time.Millisecond))
	return nil
}
