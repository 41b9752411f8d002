package embed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Failure records a chunk range whose embedding generation failed and was
// replaced by zero vectors.
type Failure struct {
	// Start and End are the half-open chunk index range [Start, End).
	Start int
	End   int
	Err   error
}

// Generator converts chunks to vectors in fixed-size, rate-limited batches
// with a zero-vector failure fallback, so the 1:1 alignment invariant
// between chunks and vectors always holds.
//
// The pacing is a simple, non-adaptive courtesy policy toward the provider,
// not a scheduler: one token per inter-batch interval.
type Generator struct {
	embedder  Embedder
	batchSize int
	limiter   *rate.Limiter // nil = unpaced
}

// NewGenerator creates a batch generator over the given embedder.
func NewGenerator(embedder Embedder, batchSize int, interBatchDelay time.Duration) *Generator {
	if batchSize < MinBatchSize {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	var limiter *rate.Limiter
	if interBatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(interBatchDelay), 1)
	}

	return &Generator{
		embedder:  embedder,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// GenerateBatch returns one vector per chunk, in order. A failed batch is
// substituted with zero vectors of the provider's dimension and recorded in
// the returned failures; it is not raised. The only returned error is
// context cancellation.
func (g *Generator) GenerateBatch(ctx context.Context, chunks []string) ([][]float32, []Failure, error) {
	vectors := make([][]float32, 0, len(chunks))
	var failures []Failure

	for start := 0; start < len(chunks); start += g.batchSize {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, nil, err
			}
		} else if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		end := min(start+g.batchSize, len(chunks))
		batch := chunks[start:end]

		embeddings, err := g.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			slog.Warn("embedding batch failed, substituting zero vectors",
				slog.Int("start", start),
				slog.Int("count", len(batch)),
				slog.String("error", err.Error()))
			failures = append(failures, Failure{Start: start, End: end, Err: err})
			for range batch {
				vectors = append(vectors, make([]float32, g.embedder.Dimensions()))
			}
			continue
		}

		vectors = append(vectors, embeddings...)
	}

	return vectors, failures, nil
}

// GenerateOne embeds a single text for query-time use. The second return
// is false on failure; callers must handle it explicitly (e.g., fall back
// to a non-vector search mode).
func (g *Generator) GenerateOne(ctx context.Context, text string) ([]float32, bool) {
	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("query embedding failed", slog.String("error", err.Error()))
		return nil, false
	}
	return vec, true
}

// TestConnection reports whether the embedding provider is reachable.
func (g *Generator) TestConnection(ctx context.Context) bool {
	return g.embedder.Available(ctx)
}

// Dimensions returns the provider's fixed embedding dimension.
func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}
