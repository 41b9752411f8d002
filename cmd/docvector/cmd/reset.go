package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docvector/docvector/internal/tracker"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the tracker store",
		Long: `Delete the tracker store file so the next index run reprocesses
every file. Uploaded objects are left in the backend; use 'index --force'
to also delete and re-upload them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runReset(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	storageRoot := cfg.Tracker.StorageRoot
	if storageRoot == "" {
		storageRoot = cfg.Ingest.Root
	}
	tr, err := tracker.New(storageRoot, cfg.Tracker.FileName)
	if err != nil {
		return err
	}

	count := tr.Count()
	if err := tr.Clear(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d tracked file(s) from %s\n", count, tr.StorePath())
	return nil
}
