package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(t.TempDir(), "testdocs", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testObject(id string, vector []float32) *SearchObject {
	return &SearchObject{
		ID:           id,
		Content:      "content of " + id,
		Vector:       vector,
		FilePath:     "/docs/api/" + id + ".md",
		FileName:     id + ".md",
		FileType:     "markdown",
		Title:        "Title " + id,
		Tags:         []string{"api", "markdown"},
		Category:     "general",
		Context:      "api",
		LastModified: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		ChunkIndex:   0,
	}
}

func TestLocalBackend_UploadAndCount(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	stats, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
		testObject("b_chunk_0", []float32{0, 1, 0, 0}),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)

	n, err := b.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLocalBackend_DimensionMismatch_FailsPerObject(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	stats, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("good", []float32{1, 0, 0, 0}),
		testObject("bad", []float32{1, 0}), // Wrong dimension
		{Vector: []float32{1, 0, 0, 0}},    // Missing id
	})

	require.NoError(t, err, "per-object failures do not fail the batch")
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
}

func TestLocalBackend_UpsertReplacesDocument(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	obj := testObject("a_chunk_0", []float32{1, 0, 0, 0})
	_, err := b.UploadBatch(ctx, []*SearchObject{obj})
	require.NoError(t, err)

	obj.Content = "updated content"
	_, err = b.UploadBatch(ctx, []*SearchObject{obj})
	require.NoError(t, err)

	n, err := b.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := b.Search(ctx, &SearchRequest{Vector: []float32{1, 0, 0, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated content", results[0].Content)
}

func TestLocalBackend_Search_RanksByCosineSimilarity(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("near", []float32{1, 0.1, 0, 0}),
		testObject("far", []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{Vector: []float32{1, 0, 0, 0}, TopK: 2})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestLocalBackend_Search_AllModesUseVector(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	for _, mode := range []SearchMode{ModeKeyword, ModeVector, ModeHybrid, ModeSemantic} {
		results, err := b.Search(ctx, &SearchRequest{
			Query:  "ignored",
			Vector: []float32{1, 0, 0, 0},
			Mode:   mode,
			TopK:   5,
		})
		require.NoError(t, err, "mode %s", mode)
		assert.Len(t, results, 1, "mode %s", mode)
	}
}

func TestLocalBackend_Search_MissingVector_Errors(t *testing.T) {
	b := newTestLocal(t)

	_, err := b.Search(context.Background(), &SearchRequest{Query: "text only", Mode: ModeKeyword})

	require.Error(t, err)
}

func TestLocalBackend_Search_EqualityFilter(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	api := testObject("api_chunk_0", []float32{1, 0, 0, 0})
	cli := testObject("cli_chunk_0", []float32{1, 0, 0, 0})
	cli.Context = "cli"
	_, err := b.UploadBatch(ctx, []*SearchObject{api, cli})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Filter: NewFilter().Equals("context", "cli"),
		TopK:   10,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cli_chunk_0", results[0].ID)
}

func TestLocalBackend_Search_InFilter(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	a := testObject("a_chunk_0", []float32{1, 0, 0, 0})
	bb := testObject("b_chunk_0", []float32{1, 0, 0, 0})
	bb.Context = "cli"
	c := testObject("c_chunk_0", []float32{1, 0, 0, 0})
	c.Context = "web"
	_, err := b.UploadBatch(ctx, []*SearchObject{a, bb, c})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Filter: NewFilter().AnyOf("context", "api", "cli"),
		TopK:   10,
	})

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLocalBackend_Search_ComparisonFilter(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	early := testObject("early_chunk_0", []float32{1, 0, 0, 0})
	early.ChunkIndex = 1
	late := testObject("late_chunk_0", []float32{1, 0, 0, 0})
	late.ChunkIndex = 7
	_, err := b.UploadBatch(ctx, []*SearchObject{early, late})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Filter: NewFilter().Compare("chunk_index", OpGreaterOrEqual, 5),
		TopK:   10,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "late_chunk_0", results[0].ID)
}

func TestLocalBackend_Search_CombinedFilter(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	match := testObject("match_chunk_0", []float32{1, 0, 0, 0})
	match.ChunkIndex = 3
	wrongCtx := testObject("wrongctx_chunk_0", []float32{1, 0, 0, 0})
	wrongCtx.Context = "cli"
	wrongCtx.ChunkIndex = 3
	wrongIdx := testObject("wrongidx_chunk_0", []float32{1, 0, 0, 0})
	wrongIdx.ChunkIndex = 9
	_, err := b.UploadBatch(ctx, []*SearchObject{match, wrongCtx, wrongIdx})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Filter: NewFilter().Equals("context", "api").Compare("chunk_index", OpLessThan, 5),
		TopK:   10,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "match_chunk_0", results[0].ID)
}

func TestLocalBackend_Search_QueryDimensionMismatch_Errors(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	_, err = b.Search(ctx, &SearchRequest{Vector: []float32{1, 0}, TopK: 1})

	require.Error(t, err)
}

func TestLocalBackend_DeleteByID(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	existed, err := b.DeleteByID(ctx, "a_chunk_0")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = b.DeleteByID(ctx, "a_chunk_0")
	require.NoError(t, err)
	assert.False(t, existed, "second delete reports non-existence")

	n, err := b.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLocalBackend_DeleteByFilter(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	api := testObject("api_chunk_0", []float32{1, 0, 0, 0})
	cli := testObject("cli_chunk_0", []float32{0, 1, 0, 0})
	cli.Context = "cli"
	_, err := b.UploadBatch(ctx, []*SearchObject{api, cli})
	require.NoError(t, err)

	deleted, err := b.DeleteByFilter(ctx, NewFilter().Equals("context", "api"))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	n, err := b.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLocalBackend_DeleteByFilter_EmptySpecDeletesNothing(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	deleted, err := b.DeleteByFilter(ctx, NewFilter())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestLocalBackend_DeleteAll_WipesCollection(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
		testObject("a_chunk_1", []float32{0, 1, 0, 0}),
		testObject("b_chunk_0", []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	deleted, err := b.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	n, err := b.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Fresh graph after the wipe: new uploads are found at small k
	_, err = b.UploadBatch(ctx, []*SearchObject{
		testObject("c_chunk_0", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)
	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Mode:   ModeVector,
		TopK:   1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c_chunk_0", results[0].ID)
}

func TestLocalBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := NewLocalBackend(dir, "persist", 4)
	require.NoError(t, err)
	_, err = b.UploadBatch(ctx, []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
		testObject("b_chunk_0", []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := NewLocalBackend(dir, "persist", 4)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := reopened.Search(ctx, &SearchRequest{Vector: []float32{1, 0, 0, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ID)
	assert.Equal(t, "Title a_chunk_0", results[0].Title)
}

func TestLocalBackend_ReservedMetadataKeysDropped(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	obj := testObject("a_chunk_0", []float32{1, 0, 0, 0})
	obj.Extra = map[string]string{"id": "evil", "team": "platform"}
	_, err := b.UploadBatch(ctx, []*SearchObject{obj})
	require.NoError(t, err)

	results, err := b.Search(ctx, &SearchRequest{
		Vector: []float32{1, 0, 0, 0},
		Filter: NewFilter().Equals("team", "platform"),
		TopK:   1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ID, "document id must not be overridden by metadata")
}

func TestLocalBackend_EmptyCollection_SearchReturnsEmpty(t *testing.T) {
	b := newTestLocal(t)

	results, err := b.Search(context.Background(), &SearchRequest{Vector: []float32{1, 0, 0, 0}})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLocalBackend_ClosedBackend_Errors(t *testing.T) {
	b := newTestLocal(t)
	require.NoError(t, b.Close())

	_, err := b.DocumentCount(context.Background())
	assert.Error(t, err)

	assert.False(t, b.TestConnection(context.Background()))
}
