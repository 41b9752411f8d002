package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCloud(t *testing.T, handler http.Handler) *CloudBackend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &CloudBackend{
		client:    &http.Client{Timeout: 5 * time.Second},
		endpoint:  server.URL,
		indexName: "docs",
		apiKey:    "test-key",
	}
}

func TestNewCloudBackend_RequiresCredentials(t *testing.T) {
	_, err := NewCloudBackend("", "idx", "key")
	assert.Error(t, err)

	_, err = NewCloudBackend("svc", "", "key")
	assert.Error(t, err)

	_, err = NewCloudBackend("svc", "idx", "")
	assert.Error(t, err)

	b, err := NewCloudBackend("svc", "idx", "key")
	require.NoError(t, err)
	assert.Equal(t, "cloud", b.Name())
}

func TestCloudBackend_DocumentCount_ParsesBareInteger(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Contains(t, r.URL.Path, "/indexes/docs/docs/$count")
		_, _ = w.Write([]byte("42"))
	}))

	n, err := b.DocumentCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCloudBackend_DocumentCount_StripsByteOrderMark(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\uFEFF17"))
	}))

	n, err := b.DocumentCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestCloudBackend_TestConnection(t *testing.T) {
	healthy := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0"))
	}))
	assert.True(t, healthy.TestConnection(context.Background()))

	failing := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	assert.False(t, failing.TestConnection(context.Background()))
}

func TestCloudBackend_UploadBatch_MapsPerDocumentStatuses(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudIndexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Value, 2)
		assert.Equal(t, actionMergeOrUpload, req.Value[0].Action)

		resp := cloudIndexResponse{Value: []cloudIndexResult{
			{Key: req.Value[0].ID, Status: true, StatusCode: 200},
			{Key: req.Value[1].ID, Status: false, StatusCode: 422, ErrorMessage: "bad vector"},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	stats, err := b.UploadBatch(context.Background(), []*SearchObject{
		testObject("a_chunk_0", []float32{1, 0, 0, 0}),
		testObject("b_chunk_0", []float32{0, 1, 0, 0}),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
}

func TestCloudBackend_UploadBatch_MissingIDFailsLocally(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an all-invalid batch")
	}))

	stats, err := b.UploadBatch(context.Background(), []*SearchObject{
		{Content: "no id"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
}

func TestCloudBackend_Search_KeywordMode(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deploy guide", req.Search)
		assert.Empty(t, req.VectorQueries)
		assert.Equal(t, "category eq 'runbook'", req.Filter)
		assert.Equal(t, 5, req.Top)

		resp := cloudSearchResponse{Value: []cloudSearchHit{
			{Score: 1.5, ID: "a_chunk_0", Content: "...", Title: "Deploy", FileName: "deploy.md"},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	results, err := b.Search(context.Background(), &SearchRequest{
		Query:  "deploy guide",
		Mode:   ModeKeyword,
		Filter: NewFilter().Equals("category", "runbook"),
		TopK:   5,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ID)
	assert.Equal(t, 1.5, results[0].Score)
}

func TestCloudBackend_Search_HybridSendsTextAndVector(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query", req.Search)
		require.Len(t, req.VectorQueries, 1)
		assert.Equal(t, "vector", req.VectorQueries[0].Kind)
		assert.Equal(t, "vector", req.VectorQueries[0].Fields)

		_ = json.NewEncoder(w).Encode(cloudSearchResponse{})
	}))

	_, err := b.Search(context.Background(), &SearchRequest{
		Query:  "query",
		Vector: []float32{1, 0},
		Mode:   ModeHybrid,
		TopK:   3,
	})

	require.NoError(t, err)
}

func TestCloudBackend_Search_VectorModeRequiresVector(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := b.Search(context.Background(), &SearchRequest{Query: "q", Mode: ModeVector})
	assert.Error(t, err)

	_, err = b.Search(context.Background(), &SearchRequest{Query: "q", Mode: ModeHybrid})
	assert.Error(t, err)
}

func TestCloudBackend_Search_SemanticFallsBackToKeyword(t *testing.T) {
	calls := 0
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls++
		if req.QueryType == "semantic" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "semantic not enabled"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(cloudSearchResponse{Value: []cloudSearchHit{
			{Score: 1.0, ID: "x"},
		}})
	}))

	results, err := b.Search(context.Background(), &SearchRequest{
		Query: "q",
		Mode:  ModeSemantic,
		TopK:  1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, results, 1)
}

func TestCloudBackend_DeleteByID(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indexes/docs/docs/search" {
			var req cloudSearchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "id eq 'a_chunk_0'", req.Filter)
			_ = json.NewEncoder(w).Encode(cloudSearchResponse{Value: []cloudSearchHit{{ID: "a_chunk_0"}}})
			return
		}
		var req cloudIndexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Value, 1)
		assert.Equal(t, actionDelete, req.Value[0].Action)
		_ = json.NewEncoder(w).Encode(cloudIndexResponse{Value: []cloudIndexResult{
			{Key: "a_chunk_0", Status: true, StatusCode: 200},
		}})
	}))

	existed, err := b.DeleteByID(context.Background(), "a_chunk_0")

	require.NoError(t, err)
	assert.True(t, existed)
}

func TestCloudBackend_DeleteByID_Missing(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(cloudSearchResponse{})
	}))

	existed, err := b.DeleteByID(context.Background(), "nope")

	require.NoError(t, err)
	assert.False(t, existed)
}

func TestCloudBackend_DeleteByFilter(t *testing.T) {
	deleted := false
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indexes/docs/docs/search" {
			if deleted {
				_ = json.NewEncoder(w).Encode(cloudSearchResponse{})
				return
			}
			_ = json.NewEncoder(w).Encode(cloudSearchResponse{Value: []cloudSearchHit{
				{ID: "a_chunk_0"}, {ID: "a_chunk_1"},
			}})
			return
		}
		deleted = true
		_ = json.NewEncoder(w).Encode(cloudIndexResponse{Value: []cloudIndexResult{
			{Key: "a_chunk_0", Status: true},
			{Key: "a_chunk_1", Status: true},
		}})
	}))

	n, err := b.DeleteByFilter(context.Background(),
		NewFilter().Equals("file_path", "/docs/a.md"))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCloudBackend_DeleteByFilter_EmptySpecNoCalls(t *testing.T) {
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty filter")
	}))

	n, err := b.DeleteByFilter(context.Background(), NewFilter())

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCloudBackend_DeleteAll_SendsUnfilteredIDCollection(t *testing.T) {
	deleted := false
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indexes/docs/docs/search" {
			var req cloudSearchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Empty(t, req.Filter, "a full wipe collects ids without a filter")
			if deleted {
				_ = json.NewEncoder(w).Encode(cloudSearchResponse{})
				return
			}
			_ = json.NewEncoder(w).Encode(cloudSearchResponse{Value: []cloudSearchHit{
				{ID: "a_chunk_0"}, {ID: "b_chunk_0"}, {ID: "b_chunk_1"},
			}})
			return
		}
		var req cloudIndexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		results := make([]cloudIndexResult, len(req.Value))
		for i, doc := range req.Value {
			assert.Equal(t, actionDelete, doc.Action)
			results[i] = cloudIndexResult{Key: doc.ID, Status: true}
		}
		deleted = true
		_ = json.NewEncoder(w).Encode(cloudIndexResponse{Value: results})
	}))

	n, err := b.DeleteAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCloudBackend_RetriesOnServerError(t *testing.T) {
	attempts := 0
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("7"))
	}))

	n, err := b.DocumentCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 3, attempts)
}

func TestCloudBackend_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	b := newTestCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := b.DocumentCount(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
