// Package config loads and validates docvector configuration.
//
// Configuration is resolved in priority order:
//  1. Built-in defaults
//  2. YAML config file (.docvector.yaml in the ingest root, or --config)
//  3. DOCVECTOR_* environment variables (highest priority)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendKind selects the active search backend. The set is closed:
// new backends are added here and in backend.New, not via registration.
type BackendKind string

const (
	BackendCloud BackendKind = "cloud"
	BackendLocal BackendKind = "local"
)

// Config is the complete docvector configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Tracker    TrackerConfig    `yaml:"tracker" json:"tracker"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// IngestConfig configures discovery and processing.
type IngestConfig struct {
	// Root is the directory tree (or single file) to ingest.
	Root string `yaml:"root" json:"root"`
	// Extensions is the set of allowed file extensions (with dot).
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Recursive walks subdirectories when true, top level only when false.
	Recursive bool `yaml:"recursive" json:"recursive"`
	// MaxFiles truncates discovery to the first N files (0 = unlimited).
	MaxFiles int `yaml:"max_files" json:"max_files"`
	// ExcludePatterns skips any path containing one of these substrings.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	// MaxChunkSize is the chunk size ceiling in bytes.
	MaxChunkSize int `yaml:"max_chunk_size" json:"max_chunk_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (default) or "static" (offline, deterministic).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// InterBatchDelay paces embedding batches (e.g., "200ms", "0" = disabled).
	InterBatchDelay string `yaml:"inter_batch_delay" json:"inter_batch_delay"`
}

// BackendConfig configures the active search backend.
type BackendConfig struct {
	// Provider selects the backend: "cloud" or "local".
	Provider BackendKind `yaml:"provider" json:"provider"`

	// Cloud backend settings (hybrid search service).
	ServiceName string `yaml:"service_name" json:"service_name"`
	IndexName   string `yaml:"index_name" json:"index_name"`
	APIKey      string `yaml:"api_key" json:"api_key"`

	// Local backend settings (embedded vector store).
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	Collection string `yaml:"collection" json:"collection"`
}

// TrackerConfig configures the idempotence tracker store.
type TrackerConfig struct {
	// StorageRoot is the directory holding the tracker file. Required;
	// tracker construction fails if unset or missing.
	StorageRoot string `yaml:"storage_root" json:"storage_root"`
	// FileName is the tracker store file name (default: .docvector-tracker.json).
	FileName string `yaml:"file_name" json:"file_name"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Ingest: IngestConfig{
			Extensions:   []string{".md", ".markdown", ".txt", ".text", ".rst"},
			Recursive:    true,
			MaxChunkSize: 2000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "ollama",
			Model:           "nomic-embed-text",
			Dimensions:      0, // auto-detect
			BatchSize:       16,
			OllamaHost:      "http://localhost:11434",
			InterBatchDelay: "100ms",
		},
		Backend: BackendConfig{
			Provider:   BackendLocal,
			IndexName:  "documents",
			Collection: "documents",
		},
		Tracker: TrackerConfig{
			FileName: ".docvector-tracker.json",
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the given path (optional), applying defaults
// first and environment overrides last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCVECTOR_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCVECTOR_ROOT"); v != "" {
		cfg.Ingest.Root = v
	}
	if v := os.Getenv("DOCVECTOR_BACKEND"); v != "" {
		cfg.Backend.Provider = BackendKind(strings.ToLower(v))
	}
	if v := os.Getenv("DOCVECTOR_SERVICE_NAME"); v != "" {
		cfg.Backend.ServiceName = v
	}
	if v := os.Getenv("DOCVECTOR_INDEX_NAME"); v != "" {
		cfg.Backend.IndexName = v
	}
	if v := os.Getenv("DOCVECTOR_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("DOCVECTOR_DATA_DIR"); v != "" {
		cfg.Backend.DataDir = v
	}
	if v := os.Getenv("DOCVECTOR_TRACKER_ROOT"); v != "" {
		cfg.Tracker.StorageRoot = v
	}
	if v := os.Getenv("DOCVECTOR_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCVECTOR_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("DOCVECTOR_EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("DOCVECTOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case BackendCloud:
		if c.Backend.ServiceName == "" {
			return fmt.Errorf("backend.service_name is required for the cloud backend")
		}
		if c.Backend.APIKey == "" {
			return fmt.Errorf("backend.api_key is required for the cloud backend")
		}
		if c.Backend.IndexName == "" {
			return fmt.Errorf("backend.index_name is required for the cloud backend")
		}
	case BackendLocal:
		if c.Backend.Collection == "" {
			return fmt.Errorf("backend.collection is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown backend provider %q (expected cloud or local)", c.Backend.Provider)
	}

	if c.Ingest.MaxChunkSize <= 0 {
		return fmt.Errorf("ingest.max_chunk_size must be positive, got %d", c.Ingest.MaxChunkSize)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if _, err := c.InterBatchDelay(); err != nil {
		return err
	}
	return nil
}

// InterBatchDelay parses the configured inter-batch delay.
func (c *Config) InterBatchDelay() (time.Duration, error) {
	raw := c.Embeddings.InterBatchDelay
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid embeddings.inter_batch_delay %q: %w", raw, err)
	}
	return d, nil
}
