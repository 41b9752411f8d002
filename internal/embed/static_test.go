package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_ImplementsEmbedderInterface(t *testing.T) {
	var _ Embedder = NewStaticEmbedder()
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "omega")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_VectorsNormalized(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "some text to embed")
	require.NoError(t, err)
	require.Len(t, vec, e.Dimensions())

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 0.001)
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	texts := []string{"one", "two", "three"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_AlwaysAvailable(t *testing.T) {
	e := NewStaticEmbedder()
	assert.True(t, e.Available(context.Background()))
	assert.NoError(t, e.Close())
}
