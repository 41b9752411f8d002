package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docvector/docvector/internal/errors"
)

// CloudBackend talks to the managed hybrid-search service over its REST API.
// The service supports keyword, vector, hybrid, and semantic query modes,
// and an equality-only string filter grammar.
type CloudBackend struct {
	client    *http.Client
	endpoint  string
	indexName string
	apiKey    string
}

var _ SearchBackend = (*CloudBackend)(nil)

// NewCloudBackend creates a client for the named service and index.
// Construction does not touch the network; use TestConnection.
func NewCloudBackend(serviceName, indexName, apiKey string) (*CloudBackend, error) {
	if serviceName == "" || indexName == "" || apiKey == "" {
		return nil, errors.ConfigError(
			"cloud backend requires service_name, index_name, and api_key", nil)
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &CloudBackend{
		client: &http.Client{
			Timeout:   cloudTimeout,
			Transport: transport,
		},
		endpoint:  fmt.Sprintf(cloudEndpointFormat, serviceName),
		indexName: indexName,
		apiKey:    apiKey,
	}, nil
}

// Name identifies the backend variant.
func (b *CloudBackend) Name() string { return "cloud" }

func (b *CloudBackend) docsURL(operation string) string {
	return fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s",
		b.endpoint, url.PathEscape(b.indexName), operation, cloudAPIVersion)
}

// doRequest issues one API call with retry on transient failures
// (connection errors, throttling, server errors). Exponential backoff
// between attempts.
func (b *CloudBackend) doRequest(ctx context.Context, method, reqURL string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < cloudMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying cloud request",
				slog.Int("attempt", attempt+1),
				slog.String("url", reqURL))
		}

		data, retryable, err := b.doRequestOnce(ctx, method, reqURL, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (b *CloudBackend) doRequestOnce(ctx context.Context, method, reqURL string, payload []byte) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api-key", b.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, true, errors.ConnectionError("cloud search service unreachable", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, requestError(resp.StatusCode, data)
	default:
		return nil, false, requestError(resp.StatusCode, data)
	}
}

func requestError(status int, body []byte) error {
	var envelope cloudErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	return errors.New(errors.ErrCodeRequestFailed,
		fmt.Sprintf("cloud request failed with status %d: %s", status, msg), nil)
}

// TestConnection probes the index via the document count operation.
func (b *CloudBackend) TestConnection(ctx context.Context) bool {
	_, err := b.DocumentCount(ctx)
	return err == nil
}

// DocumentCount returns the number of indexed documents.
// The count operation returns a bare integer body.
func (b *CloudBackend) DocumentCount(ctx context.Context) (int, error) {
	data, err := b.doRequest(ctx, http.MethodGet, b.docsURL("$count"), nil)
	if err != nil {
		return 0, err
	}
	// Strip a possible UTF-8 BOM before parsing.
	raw := strings.TrimPrefix(strings.TrimSpace(string(data)), "\uFEFF")
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unexpected document count response %q: %w", raw, err)
	}
	return count, nil
}

// UploadBatch upserts objects via the batch index operation, mapping the
// per-document statuses back to per-object outcomes.
func (b *CloudBackend) UploadBatch(ctx context.Context, objects []*SearchObject) (UploadStats, error) {
	var stats UploadStats
	if len(objects) == 0 {
		return stats, nil
	}

	req := cloudIndexRequest{Value: make([]cloudDocument, 0, len(objects))}
	for _, obj := range objects {
		if obj.ID == "" {
			stats.Failed++
			continue
		}
		req.Value = append(req.Value, cloudDocumentFrom(obj))
	}
	if len(req.Value) == 0 {
		return stats, nil
	}

	results, err := b.indexBatch(ctx, req)
	if err != nil {
		return stats, err
	}

	for _, r := range results {
		if r.Status {
			stats.Succeeded++
		} else {
			slog.Warn("cloud index rejected document",
				slog.String("key", r.Key),
				slog.Int("status_code", r.StatusCode),
				slog.String("error", r.ErrorMessage))
			stats.Failed++
		}
	}
	return stats, nil
}

func (b *CloudBackend) indexBatch(ctx context.Context, req cloudIndexRequest) ([]cloudIndexResult, error) {
	data, err := b.doRequest(ctx, http.MethodPost, b.docsURL("index"), req)
	if err != nil {
		return nil, err
	}
	var resp cloudIndexResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse index response: %w", err)
	}
	return resp.Value, nil
}

func cloudDocumentFrom(obj *SearchObject) cloudDocument {
	doc := cloudDocument{
		Action:     actionMergeOrUpload,
		ID:         obj.ID,
		Content:    obj.Content,
		Vector:     obj.Vector,
		FilePath:   obj.FilePath,
		FileName:   obj.FileName,
		FileType:   obj.FileType,
		Title:      obj.Title,
		Tags:       obj.Tags,
		Category:   obj.Category,
		Context:    obj.Context,
		ChunkIndex: obj.ChunkIndex,
	}
	if !obj.LastModified.IsZero() {
		doc.LastModified = obj.LastModified.UTC().Format(time.RFC3339)
	}
	if len(obj.Extra) > 0 {
		if blob, err := json.Marshal(obj.Extra); err == nil {
			doc.Extra = string(blob)
		}
	}
	return doc
}

// DeleteByID removes one document. The index operation reports success for
// delete actions on missing keys, so existence is checked first via a
// filtered lookup.
func (b *CloudBackend) DeleteByID(ctx context.Context, id string) (bool, error) {
	filter, err := translateCloudFilter(NewFilter().Equals("id", id))
	if err != nil {
		return false, err
	}
	ids, err := b.collectIDs(ctx, filter, 1)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}

	_, err = b.indexBatch(ctx, cloudIndexRequest{
		Value: []cloudDocument{{Action: actionDelete, ID: id}},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByFilter collects matching document ids page by page and deletes
// them in batches. Returns the number of documents deleted.
func (b *CloudBackend) DeleteByFilter(ctx context.Context, spec *FilterSpec) (int, error) {
	filter, err := translateCloudFilter(spec)
	if err != nil {
		return 0, err
	}
	if filter == "" {
		return 0, nil
	}

	deleted := 0
	for {
		ids, err := b.collectIDs(ctx, filter, cloudDeletePageSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}

		req := cloudIndexRequest{Value: make([]cloudDocument, len(ids))}
		for i, id := range ids {
			req.Value[i] = cloudDocument{Action: actionDelete, ID: id}
		}
		results, err := b.indexBatch(ctx, req)
		if err != nil {
			return deleted, err
		}
		for _, r := range results {
			if r.Status {
				deleted++
			}
		}
		if len(ids) < cloudDeletePageSize {
			return deleted, nil
		}
	}
}

// DeleteAll pages through every document id and deletes them in batches.
// Used by the pipeline's force-reset phase.
func (b *CloudBackend) DeleteAll(ctx context.Context) (int, error) {
	deleted := 0
	for {
		ids, err := b.collectIDs(ctx, "", cloudDeletePageSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}

		req := cloudIndexRequest{Value: make([]cloudDocument, len(ids))}
		for i, id := range ids {
			req.Value[i] = cloudDocument{Action: actionDelete, ID: id}
		}
		results, err := b.indexBatch(ctx, req)
		if err != nil {
			return deleted, err
		}
		for _, r := range results {
			if r.Status {
				deleted++
			}
		}
		if len(ids) < cloudDeletePageSize {
			return deleted, nil
		}
	}
}

// collectIDs returns up to limit document ids matching the filter string.
func (b *CloudBackend) collectIDs(ctx context.Context, filter string, limit int) ([]string, error) {
	req := cloudSearchRequest{
		Search: "*",
		Filter: filter,
		Select: "id",
		Top:    limit,
	}
	data, err := b.doRequest(ctx, http.MethodPost, b.docsURL("search"), req)
	if err != nil {
		return nil, err
	}
	var resp cloudSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	ids := make([]string, 0, len(resp.Value))
	for _, hit := range resp.Value {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Search executes one query in the requested mode. Vector and hybrid modes
// require req.Vector; semantic mode falls back to keyword when the service
// rejects the semantic configuration.
func (b *CloudBackend) Search(ctx context.Context, req *SearchRequest) ([]*SearchResult, error) {
	filter, err := translateCloudFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	body := cloudSearchRequest{
		Filter: filter,
		Top:    topK,
	}

	switch req.Mode {
	case ModeKeyword:
		body.Search = req.Query
	case ModeVector:
		if len(req.Vector) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidFilter,
				"vector search mode requires a query vector", nil)
		}
		body.VectorQueries = []cloudVectorQuery{vectorQuery(req.Vector, topK)}
	case ModeHybrid:
		if len(req.Vector) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidFilter,
				"hybrid search mode requires a query vector", nil)
		}
		body.Search = req.Query
		body.VectorQueries = []cloudVectorQuery{vectorQuery(req.Vector, topK)}
	case ModeSemantic:
		body.Search = req.Query
		body.QueryType = "semantic"
		body.SemanticConfiguration = "default"
	default:
		return nil, fmt.Errorf("unknown search mode %q", req.Mode)
	}

	data, err := b.doRequest(ctx, http.MethodPost, b.docsURL("search"), body)
	if err != nil && req.Mode == ModeSemantic {
		// Semantic ranking is an optional service tier. Fall back to keyword.
		slog.Warn("semantic search failed, falling back to keyword",
			slog.String("error", err.Error()))
		body.QueryType = ""
		body.SemanticConfiguration = ""
		data, err = b.doRequest(ctx, http.MethodPost, b.docsURL("search"), body)
	}
	if err != nil {
		return nil, err
	}

	var resp cloudSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]*SearchResult, 0, len(resp.Value))
	for _, hit := range resp.Value {
		results = append(results, &SearchResult{
			ID:         hit.ID,
			Content:    hit.Content,
			Title:      hit.Title,
			Context:    hit.Context,
			FileName:   hit.FileName,
			ChunkIndex: hit.ChunkIndex,
			Score:      hit.Score,
		})
	}
	return results, nil
}

func vectorQuery(vector []float32, k int) cloudVectorQuery {
	return cloudVectorQuery{
		Kind:   "vector",
		Vector: vector,
		Fields: "vector",
		K:      k,
	}
}

// Close releases idle connections.
func (b *CloudBackend) Close() error {
	if t, ok := b.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
