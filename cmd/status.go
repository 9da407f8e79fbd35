package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fheroes2/webstage/staging"
	"github.com/fheroes2/webstage/store"
)

type StatusFlags struct {
	Output string
}

var statusFlags StatusFlags

// statusReport is what `status` prints.
type statusReport struct {
	State     string                   `json:"state" yaml:"state"`
	Backend   string                   `json:"backend" yaml:"backend"`
	DataDir   string                   `json:"dataDir" yaml:"data_dir"`
	FileCount int                      `json:"fileCount" yaml:"file_count"`
	TotalSize int64                    `json:"totalSize" yaml:"total_size"`
	Files     []staging.InventoryEntry `json:"files" yaml:"files"`

	// Backend-side figures, when the store tracks them.
	LastPersist   *time.Time `json:"lastPersist,omitempty" yaml:"last_persist,omitempty"`
	StoredEntries int        `json:"storedEntries,omitempty" yaml:"stored_entries,omitempty"`
	StoredBytes   int64      `json:"storedBytes,omitempty" yaml:"stored_bytes,omitempty"`
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is staged",
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
		files, err := a.ctrl.Inventory()
		if err != nil {
			return err
		}
		report := statusReport{
			State:   a.ctrl.State().String(),
			Backend: cfg.Backend.Type,
			DataDir: a.ctrl.DataDir(),
			Files:   files,
		}
		for _, f := range files {
			if !f.Dir {
				report.FileCount++
			}
		}
		report.TotalSize = staging.TotalSize(files)
		if ins, ok := a.backend.(store.Inspector); ok {
			if err := inspect(ctx, ins, &report); err != nil {
				return err
			}
		}
		return writeStatus(cmd.OutOrStdout(), report, statusFlags.Output)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFlags.Output, "output", "o", "text", "output format: text, yaml, json")
}

func inspect(ctx context.Context, ins store.Inspector, r *statusReport) error {
	last, err := ins.LastCommit(ctx)
	if err != nil {
		return err
	}
	if !last.IsZero() {
		r.LastPersist = &last
	}
	r.StoredEntries, r.StoredBytes, err = ins.Usage(ctx)
	return err
}

func writeStatus(w io.Writer, r statusReport, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "text", "":
		fmt.Fprintf(w, "state:   %s\nbackend: %s\ndata:    %s\nfiles:   %d (%d bytes)\n\n",
			r.State, r.Backend, r.DataDir, r.FileCount, r.TotalSize)
		if r.LastPersist != nil {
			fmt.Fprintf(w, "persisted: %s\nstored:    %d entries (%d bytes)\n\n",
				r.LastPersist.Format(time.RFC3339), r.StoredEntries, r.StoredBytes)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range r.Files {
			if f.Dir {
				fmt.Fprintf(tw, "%s/\t\n", f.Path)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\n", f.Path, f.Size)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
