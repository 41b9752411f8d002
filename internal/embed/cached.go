package embed

import (
	"context"
	"crypto/sha256"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings to cache.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder memoizes embeddings in an LRU keyed by model and text.
// Repeated texts (search queries especially, but also boilerplate chunks)
// skip the inner provider entirely.
type CachedEmbedder struct {
	inner Embedder
	scope string // model name prefix, fixed at construction
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	if capacity <= 0 {
		capacity = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](capacity)
	return &CachedEmbedder{
		inner: inner,
		scope: inner.ModelName() + "\x1f",
		cache: cache,
	}
}

// key digests scope+text. The raw digest bytes serve as the map key; there
// is no need to hex-encode for an in-memory cache.
func (c *CachedEmbedder) key(text string) string {
	h := sha256.New()
	io.WriteString(h, c.scope)
	io.WriteString(h, text)
	return string(h.Sum(nil))
}

// Embed returns the cached vector for text, computing it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.cache.Get(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch fills cache hits in place and forwards only the misses to the
// inner provider, preserving input order in the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var misses []int
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	pending := make([]string, len(misses))
	for j, i := range misses {
		pending[j] = texts[i]
	}
	vecs, err := c.inner.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}

	for j, i := range misses {
		out[i] = vecs[j]
		c.cache.Add(keys[i], vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *CachedEmbedder) Close() error { return c.inner.Close() }
