// Package backend provides a uniform upload/search/delete interface over
// two divergent vector-search backends: a cloud hybrid-search service and
// an embedded local vector-only store. Each has its own filter-expression
// grammar; package filter translators convert the generic FilterSpec into
// the backend-native predicate.
package backend

import (
	"context"
	"fmt"
	"time"
)

// SearchMode selects the query strategy. The local backend routes every
// mode to vector search; the cloud backend supports all four.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeVector   SearchMode = "vector"
	ModeHybrid   SearchMode = "hybrid"
	ModeSemantic SearchMode = "semantic"
)

// SearchObject is the chunk-level unit actually persisted in a backend.
// The vector length must equal the embedding provider's fixed dimension
// (a zero vector of that length on embedding fallback).
type SearchObject struct {
	ID           string // documentId_chunk_N
	Content      string
	Vector       []float32
	FilePath     string
	FileName     string
	FileType     string
	Title        string
	Tags         []string
	Category     string
	Context      string
	LastModified time.Time
	ChunkIndex   int
	Extra        map[string]string // Opaque additional-metadata blob
}

// ObjectID builds the chunk-level id for a document chunk.
func ObjectID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// SearchResult is one ranked hit returned to the downstream query boundary.
type SearchResult struct {
	ID         string
	Content    string
	Title      string
	Context    string
	FileName   string
	ChunkIndex int
	Score      float64
}

// SearchRequest carries one query across the adapter boundary.
type SearchRequest struct {
	Query  string
	Vector []float32 // Required for vector/hybrid modes and the local backend
	Mode   SearchMode
	Filter *FilterSpec
	TopK   int
}

// UploadStats reports per-object upload outcomes. Partial failure is
// reported, not atomic: some objects of a batch may persist while others
// fail.
type UploadStats struct {
	Succeeded int
	Failed    int
}

// SearchBackend is the uniform interface over the supported backends.
type SearchBackend interface {
	// Name identifies the backend variant ("cloud" or "local").
	Name() string

	// TestConnection reports whether the backend is reachable and usable.
	TestConnection(ctx context.Context) bool

	// DocumentCount returns the number of persisted search objects.
	DocumentCount(ctx context.Context) (int, error)

	// UploadBatch persists objects, reporting per-object success/failure.
	UploadBatch(ctx context.Context, objects []*SearchObject) (UploadStats, error)

	// DeleteByID removes one object; returns whether it existed.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteByFilter removes all objects matching the spec; returns the
	// number deleted.
	DeleteByFilter(ctx context.Context, spec *FilterSpec) (int, error)

	// DeleteAll removes every object in the collection; returns the
	// number deleted.
	DeleteAll(ctx context.Context) (int, error)

	// Search returns ranked results, descending by score.
	Search(ctx context.Context, req *SearchRequest) ([]*SearchResult, error)

	// Close releases resources.
	Close() error
}
