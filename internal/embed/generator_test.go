package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEmbedder fails EmbedBatch for selected batch ordinals.
type flakyEmbedder struct {
	dims       int
	batchCalls atomic.Int64
	failBatch  map[int64]bool // 0-based batch ordinal -> fail
}

func newFlakyEmbedder(dims int, failBatches ...int64) *flakyEmbedder {
	fail := make(map[int64]bool, len(failBatches))
	for _, n := range failBatches {
		fail[n] = true
	}
	return &flakyEmbedder{dims: dims, failBatch: fail}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ordinal := f.batchCalls.Add(1) - 1
	if f.failBatch[ordinal] {
		return nil, fmt.Errorf("provider failure on batch %d", ordinal)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (f *flakyEmbedder) Dimensions() int                   { return f.dims }
func (f *flakyEmbedder) ModelName() string                 { return "flaky" }
func (f *flakyEmbedder) Available(ctx context.Context) bool { return true }
func (f *flakyEmbedder) Close() error                      { return nil }

func chunkList(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk %d", i)
	}
	return chunks
}

func TestGenerator_OneVectorPerChunk(t *testing.T) {
	g := NewGenerator(newFlakyEmbedder(8), 4, 0)

	vectors, failures, err := g.GenerateBatch(context.Background(), chunkList(10))

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, vectors, 10)
	for _, v := range vectors {
		assert.Len(t, v, 8)
	}
}

func TestGenerator_FailedBatch_ZeroVectorsKeepAlignment(t *testing.T) {
	// Given: 10 chunks in batches of 4, with the middle batch failing
	g := NewGenerator(newFlakyEmbedder(8, 1), 4, 0)

	vectors, failures, err := g.GenerateBatch(context.Background(), chunkList(10))

	require.NoError(t, err)
	require.Len(t, vectors, 10, "alignment must survive a failed batch")

	require.Len(t, failures, 1)
	assert.Equal(t, 4, failures[0].Start)
	assert.Equal(t, 8, failures[0].End)

	// Failed range is zero vectors; the rest are real
	for i := 4; i < 8; i++ {
		assert.Equal(t, make([]float32, 8), vectors[i])
	}
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(1), vectors[9][0])
}

func TestGenerator_AllBatchesFail_AllZeroVectors(t *testing.T) {
	g := NewGenerator(newFlakyEmbedder(4, 0, 1, 2), 4, 0)

	vectors, failures, err := g.GenerateBatch(context.Background(), chunkList(10))

	require.NoError(t, err, "embedding failure is recorded, never raised")
	require.Len(t, vectors, 10)
	assert.Len(t, failures, 3)
	for _, v := range vectors {
		assert.Equal(t, make([]float32, 4), v)
	}
}

func TestGenerator_CancelledContext_ReturnsError(t *testing.T) {
	g := NewGenerator(newFlakyEmbedder(4), 4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.GenerateBatch(ctx, chunkList(10))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_EmptyInput_EmptyOutput(t *testing.T) {
	g := NewGenerator(newFlakyEmbedder(4), 4, 0)

	vectors, failures, err := g.GenerateBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, failures)
}

func TestGenerator_InterBatchDelay_PacesBatches(t *testing.T) {
	// Given: 3 batches paced at 30ms apart
	g := NewGenerator(newFlakyEmbedder(4), 4, 30*time.Millisecond)

	start := time.Now()
	_, _, err := g.GenerateBatch(context.Background(), chunkList(12))
	elapsed := time.Since(start)

	require.NoError(t, err)
	// First token is immediate, the other two wait
	assert.GreaterOrEqual(t, elapsed, 55*time.Millisecond)
}

func TestGenerator_BatchSizeClamped(t *testing.T) {
	e := newFlakyEmbedder(4)
	g := NewGenerator(e, 0, 0) // Invalid, falls back to default

	_, _, err := g.GenerateBatch(context.Background(), chunkList(DefaultBatchSize+1))

	require.NoError(t, err)
	assert.Equal(t, int64(2), e.batchCalls.Load())
}

func TestGenerator_GenerateOne_FailureReturnsFalse(t *testing.T) {
	g := NewGenerator(newFlakyEmbedder(4, 0), 4, 0)

	vec, ok := g.GenerateOne(context.Background(), "query")

	assert.False(t, ok)
	assert.Nil(t, vec)
}
