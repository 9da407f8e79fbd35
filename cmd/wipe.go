package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fheroes2/webstage/staging"
)

type WipeFlags struct {
	Yes bool
}

var wipeFlags WipeFlags

// wipeCmd represents the wipe command
var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all staged game files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		a, err := createApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.close() //nolint:errcheck

		if err := a.ctrl.Bootstrap(ctx); err != nil {
			return err
		}
		if a.ctrl.State() != staging.Ready {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing staged")
			return nil
		}

		var confirm staging.Confirmer
		if !wipeFlags.Yes {
			confirm = promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout())
		}
		res, err := a.ctrl.Wipe(ctx, confirm)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries (%s)\n", len(res.Removed), res.Status())
		return res.Err()
	},
}

func init() {
	rootCmd.AddCommand(wipeCmd)
	wipeCmd.Flags().BoolVarP(&wipeFlags.Yes, "yes", "y", false, "do not ask for confirmation")
}

// promptConfirm asks on out and reads a y/yes answer from in.
func promptConfirm(in io.Reader, out io.Writer) staging.Confirmer {
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
