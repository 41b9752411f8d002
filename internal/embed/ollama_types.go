package embed

import "time"

// Default Ollama settings.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the initial health check.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize is the HTTP connection pool size.
	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order when the configured model is
// not installed.
var FallbackOllamaModels = []string{
	"nomic-embed-text",
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string
	Dimensions     int // 0 = auto-detect from a probe embedding
	BatchSize      int
	Timeout        time.Duration
	MaxRetries     int
	PoolSize       int

	// SkipHealthCheck skips connection and model discovery (tests only).
	SkipHealthCheck bool
}

// ollamaEmbedRequest is the request body for POST /api/embed.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the response body for POST /api/embed.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaModelInfo describes one installed model.
type ollamaModelInfo struct {
	Name string `json:"name"`
}

// ollamaModelListResponse is the response body for GET /api/tags.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}
