package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docvector/docvector/internal/pipeline"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracker and backend state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type statusInfo struct {
	Backend       string `json:"backend"`
	Reachable     bool   `json:"reachable"`
	DocumentCount int    `json:"document_count"`
	TrackerPath   string `json:"tracker_path"`
	TrackedFiles  int    `json:"tracked_files"`
	IngestRoot    string `json:"ingest_root"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	info := statusInfo{
		Backend:      p.Backend().Name(),
		TrackerPath:  p.Tracker().StorePath(),
		TrackedFiles: p.Tracker().Count(),
		IngestRoot:   cfg.Ingest.Root,
	}
	info.Reachable = p.Backend().TestConnection(ctx)
	if info.Reachable {
		if n, err := p.Backend().DocumentCount(ctx); err == nil {
			info.DocumentCount = n
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Ingest root:    %s\n", info.IngestRoot)
	fmt.Fprintf(out, "Backend:        %s (reachable: %t)\n", info.Backend, info.Reachable)
	fmt.Fprintf(out, "Documents:      %d\n", info.DocumentCount)
	fmt.Fprintf(out, "Tracked files:  %d\n", info.TrackedFiles)
	fmt.Fprintf(out, "Tracker store:  %s\n", info.TrackerPath)
	return nil
}
