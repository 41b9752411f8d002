package pipeline

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthReport is the outcome of a doctor check.
type HealthReport struct {
	BackendName      string
	BackendReachable bool
	DocumentCount    int
	EmbedderModel    string
	EmbedderOK       bool
	TrackerPath      string
	TrackerWritable  bool
	TrackedFiles     int
	IngestRootOK     bool
	Elapsed          time.Duration
}

// Healthy reports whether every probe passed.
func (r *HealthReport) Healthy() bool {
	return r.BackendReachable && r.EmbedderOK && r.TrackerWritable && r.IngestRootOK
}

// Doctor probes the pipeline's external dependencies concurrently:
// backend reachability and document count, embedding provider availability,
// tracker store writability, and ingest root existence.
func (p *Pipeline) Doctor(ctx context.Context) *HealthReport {
	start := time.Now()
	report := &HealthReport{
		BackendName:   p.backend.Name(),
		EmbedderModel: p.embedder.ModelName(),
		TrackerPath:   p.tracker.StorePath(),
		TrackedFiles:  p.tracker.Count(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		report.BackendReachable = p.backend.TestConnection(gctx)
		if report.BackendReachable {
			if n, err := p.backend.DocumentCount(gctx); err == nil {
				report.DocumentCount = n
			}
		}
		return nil
	})

	g.Go(func() error {
		report.EmbedderOK = p.embedder.Available(gctx)
		return nil
	})

	g.Go(func() error {
		report.TrackerWritable = p.tracker.Save() == nil
		return nil
	})

	g.Go(func() error {
		info, err := os.Stat(p.cfg.Ingest.Root)
		report.IngestRootOK = err == nil && (info.IsDir() || info.Size() > 0)
		return nil
	})

	_ = g.Wait() // Probes record outcomes, never fail the group

	report.Elapsed = time.Since(start)
	return report
}
