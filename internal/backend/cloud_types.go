package backend

import "time"

// Cloud service API defaults.
const (
	cloudAPIVersion     = "2024-07-01"
	cloudEndpointFormat = "https://%s.search.windows.net"
	cloudTimeout        = 30 * time.Second
	cloudMaxRetries     = 3

	// cloudDeletePageSize bounds each id-collection page during
	// delete-by-filter.
	cloudDeletePageSize = 1000

	// Index actions for the documents/index operation.
	actionMergeOrUpload = "mergeOrUpload"
	actionDelete        = "delete"
)

// cloudDocument is the wire shape of one indexed chunk. Field names match
// the index schema; the action field selects upsert vs delete per document.
type cloudDocument struct {
	Action       string    `json:"@search.action,omitempty"`
	ID           string    `json:"id"`
	Content      string    `json:"content,omitempty"`
	Vector       []float32 `json:"vector,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	FileType     string    `json:"file_type,omitempty"`
	Title        string    `json:"title,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Category     string    `json:"category,omitempty"`
	Context      string    `json:"context,omitempty"`
	LastModified string    `json:"last_modified,omitempty"` // RFC 3339
	ChunkIndex   int       `json:"chunk_index"`
	Extra        string    `json:"extra,omitempty"` // JSON-encoded opaque blob
}

// cloudIndexRequest is the batch body for the documents/index operation.
type cloudIndexRequest struct {
	Value []cloudDocument `json:"value"`
}

// cloudIndexResult is the per-document outcome of an index batch.
type cloudIndexResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StatusCode   int    `json:"statusCode"`
}

type cloudIndexResponse struct {
	Value []cloudIndexResult `json:"value"`
}

// cloudVectorQuery is one vector clause of a search request.
type cloudVectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

// cloudSearchRequest is the body for the documents/search operation.
// Keyword mode sets Search only; vector mode sets VectorQueries only;
// hybrid sets both; semantic additionally sets QueryType.
type cloudSearchRequest struct {
	Search                string             `json:"search,omitempty"`
	Filter                string             `json:"filter,omitempty"`
	Select                string             `json:"select,omitempty"`
	Top                   int                `json:"top,omitempty"`
	VectorQueries         []cloudVectorQuery `json:"vectorQueries,omitempty"`
	QueryType             string             `json:"queryType,omitempty"`
	SemanticConfiguration string             `json:"semanticConfiguration,omitempty"`
}

// cloudSearchHit is one search result document with its service-assigned
// score.
type cloudSearchHit struct {
	Score      float64 `json:"@search.score"`
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Title      string  `json:"title"`
	Context    string  `json:"context"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
}

type cloudSearchResponse struct {
	Value []cloudSearchHit `json:"value"`
}

// cloudErrorResponse is the service's error envelope.
type cloudErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
