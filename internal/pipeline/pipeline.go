// Package pipeline orchestrates the ingestion flow: discover files, skip
// already-processed ones, extract and chunk, embed, upload, and commit the
// tracker per file.
//
// Failure granularity is the file: any error below file level (unreadable
// content, rejected upload, embedding fallback exhaustion) fails that file
// and the run continues. Only connectivity loss and a missing ingest root
// abort the whole run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/docvector/docvector/internal/backend"
	"github.com/docvector/docvector/internal/config"
	"github.com/docvector/docvector/internal/discovery"
	"github.com/docvector/docvector/internal/document"
	"github.com/docvector/docvector/internal/embed"
	"github.com/docvector/docvector/internal/errors"
	"github.com/docvector/docvector/internal/tracker"
)

// chunkCountKey is the tracker metadata key recording how many chunk
// objects a file produced on its last successful run.
const chunkCountKey = "chunk_count"

// RunOptions control one pipeline run.
type RunOptions struct {
	// Force clears the tracker and deletes previously uploaded objects
	// before ingesting, so every discovered file is reprocessed.
	Force bool

	// MetadataOverride, when non-nil, replaces metadata extraction for
	// every file in the run. Must be complete; see document.ExtractWithOverride.
	MetadataOverride map[string]any
}

// FileError records one failed file.
type FileError struct {
	Path string
	Err  error
}

// Result summarizes one pipeline run.
type Result struct {
	RunID      string
	Discovered int
	Skipped    int
	Processed  int
	Uploaded   int // Chunk objects persisted
	Failed     int // Files that failed
	Errors     []FileError

	DiscoverDuration time.Duration
	ProcessDuration  time.Duration
	TotalDuration    time.Duration
}

// Pipeline wires the ingestion components together.
type Pipeline struct {
	cfg       *config.Config
	tracker   *tracker.Tracker
	backend   backend.SearchBackend
	generator *embed.Generator
	embedder  embed.Embedder
}

// New constructs a pipeline from configuration: embedding provider
// (LRU-cached), batch generator, backend adapter, and tracker store.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	delay, err := cfg.InterBatchDelay()
	if err != nil {
		return nil, err
	}
	generator := embed.NewGenerator(embedder, cfg.Embeddings.BatchSize, delay)

	be, err := backend.New(cfg.Backend, embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	storageRoot := cfg.Tracker.StorageRoot
	if storageRoot == "" {
		storageRoot = cfg.Ingest.Root
	}
	tr, err := tracker.New(storageRoot, cfg.Tracker.FileName)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		tracker:   tr,
		backend:   be,
		generator: generator,
		embedder:  embedder,
	}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	case "", "ollama":
		e, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (expected ollama or static)",
			cfg.Embeddings.Provider)
	}
	return embed.NewCachedEmbedder(inner, embed.DefaultEmbeddingCacheSize), nil
}

// Tracker exposes the tracker for status reporting.
func (p *Pipeline) Tracker() *tracker.Tracker { return p.tracker }

// Backend exposes the backend for status reporting and search.
func (p *Pipeline) Backend() backend.SearchBackend { return p.backend }

// Run executes one full ingestion pass.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.NewString()}

	log := slog.With(slog.String("run_id", result.RunID))
	log.Info("pipeline run starting",
		slog.String("root", p.cfg.Ingest.Root),
		slog.String("backend", p.backend.Name()),
		slog.Bool("force", opts.Force))

	// Backend connectivity is checked once at run entry and is fatal.
	if !p.backend.TestConnection(ctx) {
		return nil, errors.ConnectionError(
			"backend is unreachable: "+p.backend.Name(), nil)
	}
	if !p.generator.TestConnection(ctx) {
		// Not fatal: failed batches fall back to zero vectors.
		log.Warn("embedding provider unavailable, failed batches will get zero vectors")
	}

	if opts.Force {
		if err := p.forceReset(ctx, log); err != nil {
			return nil, err
		}
	}

	discoverStart := time.Now()
	files, err := discovery.Discover(ctx, p.cfg.Ingest.Root, discovery.Options{
		Extensions:      p.cfg.Ingest.Extensions,
		Recursive:       p.cfg.Ingest.Recursive,
		MaxFiles:        p.cfg.Ingest.MaxFiles,
		ExcludePatterns: p.cfg.Ingest.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}
	result.DiscoverDuration = time.Since(discoverStart)
	result.Discovered = len(files)

	pending := make([]*discovery.DiscoveredFile, 0, len(files))
	for _, f := range files {
		if p.tracker.IsProcessed(signatureOf(f)) {
			result.Skipped++
			continue
		}
		pending = append(pending, f)
	}
	log.Info("discovery complete",
		slog.Int("discovered", result.Discovered),
		slog.Int("skipped", result.Skipped),
		slog.Int("pending", len(pending)))

	processStart := time.Now()
	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		uploaded, err := p.processFile(ctx, f, opts)
		if err != nil {
			if errors.IsFatal(err) {
				return result, err
			}
			log.Error("file failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			result.Failed++
			result.Errors = append(result.Errors, FileError{Path: f.Path, Err: err})
			continue
		}
		result.Processed++
		result.Uploaded += uploaded
	}
	result.ProcessDuration = time.Since(processStart)
	result.TotalDuration = time.Since(start)

	log.Info("pipeline run complete",
		slog.Int("processed", result.Processed),
		slog.Int("uploaded", result.Uploaded),
		slog.Int("failed", result.Failed),
		slog.Duration("total", result.TotalDuration))
	return result, nil
}

// processFile runs one file end to end. The file is marked processed only
// after every chunk object uploaded successfully; a partial upload leaves
// the file unmarked so the next run retries it whole.
func (p *Pipeline) processFile(ctx context.Context, f *discovery.DiscoveredFile, opts RunOptions) (int, error) {
	doc, err := document.Process(f.Path, f.ModTime, document.ProcessOptions{
		MaxChunkSize:     p.cfg.Ingest.MaxChunkSize,
		MetadataOverride: opts.MetadataOverride,
	})
	if err != nil {
		return 0, err
	}

	vectors, failures, err := p.generator.GenerateBatch(ctx, doc.Chunks)
	if err != nil {
		return 0, err
	}
	for _, fail := range failures {
		slog.Warn("embedding fallback for chunk range",
			slog.String("path", f.Path),
			slog.Int("start", fail.Start),
			slog.Int("end", fail.End))
	}

	objects := make([]*backend.SearchObject, len(doc.Chunks))
	for i, text := range doc.Chunks {
		objects[i] = &backend.SearchObject{
			ID:           backend.ObjectID(doc.ID, i),
			Content:      text,
			Vector:       vectors[i],
			FilePath:     doc.FilePath,
			FileName:     doc.FileName,
			FileType:     string(doc.FileType),
			Title:        doc.Title,
			Tags:         doc.Tags,
			Category:     doc.Category,
			Context:      doc.Context,
			LastModified: doc.LastModified,
			ChunkIndex:   i,
			Extra:        doc.Extra,
		}
	}

	stats, err := p.backend.UploadBatch(ctx, objects)
	if err != nil {
		return stats.Succeeded, errors.Wrap(errors.ErrCodeUploadFailed, err)
	}
	if stats.Failed > 0 {
		return stats.Succeeded, errors.New(errors.ErrCodeUploadFailed,
			fmt.Sprintf("%d of %d chunk objects rejected", stats.Failed, len(objects)), nil)
	}

	p.tracker.MarkProcessed(signatureOf(f), map[string]string{
		chunkCountKey: strconv.Itoa(doc.ChunkCount),
	})
	if err := p.tracker.Save(); err != nil {
		return stats.Succeeded, err
	}
	return stats.Succeeded, nil
}

// forceReset wipes the backend collection, then clears the tracker store.
// A full wipe rather than per-tracked-id deletion: stale objects from
// earlier, larger versions of a file and objects the tracker never recorded
// must not survive a forced re-ingestion.
func (p *Pipeline) forceReset(ctx context.Context, log *slog.Logger) error {
	deleted, err := p.backend.DeleteAll(ctx)
	if err != nil {
		return err
	}
	if err := p.tracker.Clear(); err != nil {
		return err
	}
	log.Info("force reset complete",
		slog.Int("objects_deleted", deleted))
	return nil
}

// Search embeds the query when the backend or mode needs a vector, then
// delegates to the backend adapter.
func (p *Pipeline) Search(ctx context.Context, query string, mode backend.SearchMode, filter *backend.FilterSpec, topK int) ([]*backend.SearchResult, error) {
	req := &backend.SearchRequest{
		Query:  query,
		Mode:   mode,
		Filter: filter,
		TopK:   topK,
	}

	needsVector := p.backend.Name() == "local" ||
		mode == backend.ModeVector || mode == backend.ModeHybrid
	if needsVector {
		vec, ok := p.generator.GenerateOne(ctx, query)
		if !ok {
			if p.backend.Name() == "local" {
				return nil, errors.New(errors.ErrCodeEmbedderUnavailable,
					"query embedding failed and the local backend has no text search fallback", nil)
			}
			slog.Warn("query embedding failed, falling back to keyword mode")
			req.Mode = backend.ModeKeyword
		} else {
			req.Vector = vec
		}
	}

	return p.backend.Search(ctx, req)
}

// Close releases backend and embedder resources.
func (p *Pipeline) Close() error {
	err := p.backend.Close()
	if cerr := p.embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

func signatureOf(f *discovery.DiscoveredFile) tracker.Signature {
	return tracker.Signature{
		Path:    f.Path,
		Size:    f.Size,
		ModTime: f.ModTime,
	}
}
