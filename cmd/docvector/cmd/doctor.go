package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docvector/docvector/internal/pipeline"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external dependencies",
		Long: `Probe everything a pipeline run needs: backend reachability,
embedding provider availability, tracker store writability, and the
ingest root. Exits non-zero when any probe fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	report := p.Doctor(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s backend:      %s\n", mark(report.BackendReachable), report.BackendName)
	if report.BackendReachable {
		fmt.Fprintf(out, "  documents:     %d\n", report.DocumentCount)
	}
	fmt.Fprintf(out, "%s embedder:     %s\n", mark(report.EmbedderOK), report.EmbedderModel)
	fmt.Fprintf(out, "%s tracker:      %s (%d files)\n",
		mark(report.TrackerWritable), report.TrackerPath, report.TrackedFiles)
	fmt.Fprintf(out, "%s ingest root:  %s\n", mark(report.IngestRootOK), cfg.Ingest.Root)
	fmt.Fprintf(out, "checked in %s\n", report.Elapsed.Round(1e6))

	if !report.Healthy() {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
