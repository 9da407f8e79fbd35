package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fheroes2/webstage/picker"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Stage a folder and restage it whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		a, err := createApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.close() //nolint:errcheck

		return picker.NewDaemon(a.ctrl, args[0]).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
