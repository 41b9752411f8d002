package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/docvector/docvector/internal/config"
	"github.com/docvector/docvector/internal/pipeline"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var watch bool
	var metadataFile string
	var backendName string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Discover, embed, and upload documents",
		Long: `Run the ingestion pipeline: discover files under the ingest root,
skip already-processed ones, chunk and embed the rest, and upload the
chunk objects to the configured backend.

With --force, the tracker is cleared and previously uploaded objects are
deleted first, so every file is reprocessed.

With --watch, the pipeline re-runs automatically when files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd.Context(), cmd, root, backendName, force, watch, metadataFile)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess everything from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-index on file changes")
	cmd.Flags().StringVar(&metadataFile, "metadata-file", "",
		"YAML file with a complete metadata override applied to every document")
	cmd.Flags().StringVar(&backendName, "backend", "", "Backend to upload to: cloud or local (overrides config)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root, backendName string, force, watch bool, metadataFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if root != "" {
		cfg.Ingest.Root = root
	}
	if backendName != "" {
		cfg.Backend.Provider = config.BackendKind(strings.ToLower(backendName))
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	opts := pipeline.RunOptions{Force: force}
	if metadataFile != "" {
		override, err := loadMetadataOverride(metadataFile)
		if err != nil {
			return err
		}
		opts.MetadataOverride = override
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if watch {
		return p.Watch(ctx, opts)
	}

	result, err := p.Run(ctx, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s complete in %s\n", result.RunID, result.TotalDuration.Round(1e6))
	fmt.Fprintf(out, "  discovered: %d\n", result.Discovered)
	fmt.Fprintf(out, "  skipped:    %d\n", result.Skipped)
	fmt.Fprintf(out, "  processed:  %d\n", result.Processed)
	fmt.Fprintf(out, "  uploaded:   %d chunk objects\n", result.Uploaded)
	if result.Failed > 0 {
		fmt.Fprintf(out, "  failed:     %d\n", result.Failed)
		for _, fe := range result.Errors {
			fmt.Fprintf(out, "    %s: %v\n", fe.Path, fe.Err)
		}
		return fmt.Errorf("%d file(s) failed", result.Failed)
	}
	return nil
}

func loadMetadataOverride(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var override map[string]any
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}
	return override, nil
}
