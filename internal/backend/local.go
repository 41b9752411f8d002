package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/renameio"

	"github.com/docvector/docvector/internal/errors"
)

// Reserved document keys in the local store. Incoming metadata keys that
// collide with these are dropped on upload to avoid duplicate-specification
// errors.
var localReservedKeys = map[string]bool{
	"id":      true,
	"content": true,
	"vector":  true,
}

// localOverFetchFactor widens vector search when a filter is applied, since
// filtering happens after candidate retrieval.
const localOverFetchFactor = 5

// localDoc is one stored document: text, vector, and flat metadata.
type localDoc struct {
	Content string
	Vector  []float32
	Meta    map[string]any
}

// localSnapshot is the persisted collection shape: documents addressed by
// id with parallel arrays of text, vector, and flat metadata.
type localSnapshot struct {
	Dimensions int              `json:"dimensions"`
	IDs        []string         `json:"ids"`
	Contents   []string         `json:"contents"`
	Vectors    [][]float32      `json:"vectors"`
	Metadatas  []map[string]any `json:"metadatas"`
}

// LocalBackend is an embedded vector-only store: an HNSW graph over a flat
// metadata map, persisted atomically under a collection directory. Every
// search request routes to vector search regardless of the requested mode.
type LocalBackend struct {
	mu   sync.RWMutex
	dir  string
	name string
	dims int

	docs  map[string]*localDoc
	graph *hnsw.Graph[uint64]

	// ID mapping (string <-> uint64) with lazy deletion: removed ids are
	// orphaned in the graph and skipped at query time.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// orphans counts graph nodes whose documents were removed or replaced.
	// Searches widen k by this amount so live results are not crowded out.
	orphans int

	closed bool
}

// Verify interface implementation at compile time.
var _ SearchBackend = (*LocalBackend)(nil)

// NewLocalBackend opens (or creates) the named collection under dataDir.
// Dimensions may be 0 to adopt the dimension of the first uploaded vector.
func NewLocalBackend(dataDir, collection string, dimensions int) (*LocalBackend, error) {
	if collection == "" {
		return nil, errors.ConfigError("local backend collection name is required", nil)
	}
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "docvector")
	}

	dir := filepath.Join(dataDir, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}

	b := &LocalBackend{
		dir:    dir,
		name:   collection,
		dims:   dimensions,
		docs:   make(map[string]*localDoc),
		graph:  newGraph(),
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}

	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return g
}

func (b *LocalBackend) snapshotPath() string {
	return filepath.Join(b.dir, "collection.json")
}

// load restores the collection snapshot and rebuilds the HNSW graph.
// A corrupt snapshot starts the collection empty (best-effort recovery).
func (b *LocalBackend) load() error {
	data, err := os.ReadFile(b.snapshotPath())
	if err != nil {
		return nil // Fresh collection
	}

	var snap localSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("local collection snapshot unparsable, starting empty",
			slog.String("path", b.snapshotPath()),
			slog.String("error", err.Error()))
		return nil
	}

	if len(snap.IDs) != len(snap.Contents) ||
		len(snap.IDs) != len(snap.Vectors) ||
		len(snap.IDs) != len(snap.Metadatas) {
		slog.Warn("local collection snapshot has mismatched arrays, starting empty",
			slog.String("path", b.snapshotPath()))
		return nil
	}

	b.dims = snap.Dimensions
	for i, id := range snap.IDs {
		b.insertLocked(id, snap.Contents[i], snap.Vectors[i], snap.Metadatas[i])
	}
	return nil
}

// save persists the collection atomically (write-to-temp-then-rename).
func (b *LocalBackend) save() error {
	ids := make([]string, 0, len(b.docs))
	for id := range b.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := localSnapshot{
		Dimensions: b.dims,
		IDs:        ids,
		Contents:   make([]string, len(ids)),
		Vectors:    make([][]float32, len(ids)),
		Metadatas:  make([]map[string]any, len(ids)),
	}
	for i, id := range ids {
		doc := b.docs[id]
		snap.Contents[i] = doc.Content
		snap.Vectors[i] = doc.Vector
		snap.Metadatas[i] = doc.Meta
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := renameio.WriteFile(b.snapshotPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write collection: %w", err)
	}
	return nil
}

// insertLocked adds or replaces one document. Caller holds the write lock
// (or is in single-threaded construction).
func (b *LocalBackend) insertLocked(id, content string, vector []float32, meta map[string]any) {
	if existingKey, exists := b.idMap[id]; exists {
		// Lazy deletion: orphan the old graph node.
		delete(b.keyMap, existingKey)
		delete(b.idMap, id)
		b.orphans++
	}

	key := b.nextKey
	b.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	b.graph.Add(hnsw.MakeNode(key, vec))
	b.idMap[id] = key
	b.keyMap[key] = id
	b.docs[id] = &localDoc{Content: content, Vector: vector, Meta: meta}
}

// Name identifies the backend variant.
func (b *LocalBackend) Name() string { return "local" }

// TestConnection reports whether the collection directory is usable.
func (b *LocalBackend) TestConnection(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	info, err := os.Stat(b.dir)
	return err == nil && info.IsDir()
}

// DocumentCount returns the number of stored documents.
func (b *LocalBackend) DocumentCount(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("backend is closed")
	}
	return len(b.docs), nil
}

// UploadBatch persists objects, reporting per-object outcomes. Objects with
// a missing id or a mismatched vector dimension fail individually; the rest
// of the batch proceeds.
func (b *LocalBackend) UploadBatch(ctx context.Context, objects []*SearchObject) (UploadStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var stats UploadStats
	if b.closed {
		return stats, fmt.Errorf("backend is closed")
	}

	for _, obj := range objects {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if obj.ID == "" {
			stats.Failed++
			continue
		}
		if b.dims == 0 {
			b.dims = len(obj.Vector)
		}
		if len(obj.Vector) != b.dims {
			slog.Warn("rejecting object with mismatched vector dimension",
				slog.String("id", obj.ID),
				slog.Int("expected", b.dims),
				slog.Int("got", len(obj.Vector)))
			stats.Failed++
			continue
		}

		b.insertLocked(obj.ID, obj.Content, obj.Vector, flatMetadata(obj))
		stats.Succeeded++
	}

	if stats.Succeeded > 0 {
		if err := b.save(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// DeleteByID removes one document; returns whether it existed.
func (b *LocalBackend) DeleteByID(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, fmt.Errorf("backend is closed")
	}

	if _, exists := b.docs[id]; !exists {
		return false, nil
	}
	b.removeLocked(id)
	return true, b.save()
}

// DeleteByFilter removes all documents matching the spec.
// An empty spec matches nothing here; use a broad condition to wipe.
func (b *LocalBackend) DeleteByFilter(ctx context.Context, spec *FilterSpec) (int, error) {
	where, err := translateLocalFilter(spec)
	if err != nil {
		return 0, err
	}
	if where == nil {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("backend is closed")
	}

	var matched []string
	for id, doc := range b.docs {
		if matchesWhere(doc.Meta, where) {
			matched = append(matched, id)
		}
	}
	for _, id := range matched {
		b.removeLocked(id)
	}

	if len(matched) > 0 {
		if err := b.save(); err != nil {
			return len(matched), err
		}
	}
	return len(matched), nil
}

// DeleteAll wipes the collection. Used by the pipeline's force-reset phase.
func (b *LocalBackend) DeleteAll(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("backend is closed")
	}

	n := len(b.docs)
	b.docs = make(map[string]*localDoc)
	b.graph = newGraph()
	b.idMap = make(map[string]uint64)
	b.keyMap = make(map[uint64]string)
	b.nextKey = 0
	b.orphans = 0

	return n, b.save()
}

func (b *LocalBackend) removeLocked(id string) {
	if key, exists := b.idMap[id]; exists {
		// Lazy deletion: the graph node is orphaned, not removed.
		delete(b.keyMap, key)
		delete(b.idMap, id)
		b.orphans++
	}
	delete(b.docs, id)
}

// Search performs vector search. The local store supports no text or
// semantic modes, so every request routes here regardless of req.Mode.
// Filtering is applied after candidate retrieval, with over-fetching to
// compensate.
func (b *LocalBackend) Search(ctx context.Context, req *SearchRequest) ([]*SearchResult, error) {
	if len(req.Vector) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidFilter,
			"local backend requires a query vector for every search mode", nil)
	}

	where, err := translateLocalFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	if b.dims > 0 && len(req.Vector) != b.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector dimension %d does not match store dimension %d",
				len(req.Vector), b.dims), nil)
	}
	if b.graph.Len() == 0 {
		return []*SearchResult{}, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	k := topK
	if where != nil {
		k = topK * localOverFetchFactor
	}
	k += b.orphans
	if k > b.graph.Len() {
		k = b.graph.Len()
	}

	query := make([]float32, len(req.Vector))
	copy(query, req.Vector)
	normalizeInPlace(query)

	nodes := b.graph.Search(query, k)

	results := make([]*SearchResult, 0, topK)
	for _, node := range nodes {
		id, exists := b.keyMap[node.Key]
		if !exists {
			continue // Orphaned by lazy deletion
		}
		doc := b.docs[id]
		if where != nil && !matchesWhere(doc.Meta, where) {
			continue
		}

		distance := b.graph.Distance(query, node.Value)
		results = append(results, resultFromDoc(id, doc, 1.0-float64(distance)/2.0))
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// Close releases resources.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.graph = nil
	return nil
}

// flatMetadata builds the flat metadata map persisted alongside a document.
// Tags are joined into a single string because the store holds scalar
// metadata only; last_modified is stored as unix seconds so comparison
// filters work. Extra keys colliding with reserved document keys are
// dropped.
func flatMetadata(obj *SearchObject) map[string]any {
	meta := map[string]any{
		"file_path":     obj.FilePath,
		"file_name":     obj.FileName,
		"file_type":     obj.FileType,
		"title":         obj.Title,
		"tags":          strings.Join(obj.Tags, ","),
		"category":      obj.Category,
		"context":       obj.Context,
		"last_modified": float64(obj.LastModified.Unix()),
		"chunk_index":   float64(obj.ChunkIndex),
	}
	for k, v := range obj.Extra {
		if localReservedKeys[k] {
			slog.Debug("dropping reserved metadata key", slog.String("key", k))
			continue
		}
		if _, taken := meta[k]; taken {
			continue
		}
		meta[k] = v
	}
	return meta
}

func resultFromDoc(id string, doc *localDoc, score float64) *SearchResult {
	res := &SearchResult{
		ID:      id,
		Content: doc.Content,
		Score:   score,
	}
	if s, ok := doc.Meta["title"].(string); ok {
		res.Title = s
	}
	if s, ok := doc.Meta["context"].(string); ok {
		res.Context = s
	}
	if s, ok := doc.Meta["file_name"].(string); ok {
		res.FileName = s
	}
	if n, ok := toFloat(doc.Meta["chunk_index"]); ok {
		res.ChunkIndex = int(n)
	}
	return res
}

// matchesWhere evaluates a translated local-grammar predicate against a
// document's flat metadata.
func matchesWhere(meta map[string]any, where map[string]any) bool {
	for key, cond := range where {
		if key == "$and" {
			clauses, ok := cond.([]any)
			if !ok {
				return false
			}
			for _, clause := range clauses {
				m, ok := clause.(map[string]any)
				if !ok || !matchesWhere(meta, m) {
					return false
				}
			}
			continue
		}

		actual, present := meta[key]
		if !present {
			return false
		}

		switch c := cond.(type) {
		case map[string]any:
			if !matchesOperator(actual, c) {
				return false
			}
		default:
			if !valuesEqual(actual, cond) {
				return false
			}
		}
	}
	return true
}

func matchesOperator(actual any, ops map[string]any) bool {
	for op, bound := range ops {
		switch op {
		case "$in":
			values, ok := bound.([]any)
			if !ok {
				return false
			}
			found := false
			for _, v := range values {
				if valuesEqual(actual, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$gte", "$gt", "$lte", "$lt":
			a, aok := toFloat(actual)
			b, bok := toFloat(bound)
			if !aok || !bok {
				return false
			}
			switch op {
			case "$gte":
				if !(a >= b) {
					return false
				}
			case "$gt":
				if !(a > b) {
					return false
				}
			case "$lte":
				if !(a <= b) {
					return false
				}
			case "$lt":
				if !(a < b) {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

// valuesEqual compares metadata values, treating all numeric types as
// equivalent (JSON round-trips numbers as float64).
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
