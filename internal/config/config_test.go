package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidLocalConfig(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendLocal, cfg.Backend.Provider)
	assert.Contains(t, cfg.Ingest.Extensions, ".md")
	assert.True(t, cfg.Ingest.Recursive)
	assert.Equal(t, 2000, cfg.Ingest.MaxChunkSize)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ingest:
  root: /docs
  recursive: false
  max_chunk_size: 500
embeddings:
  provider: static
  batch_size: 8
backend:
  provider: local
  collection: mydocs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/docs", cfg.Ingest.Root)
	assert.False(t, cfg.Ingest.Recursive)
	assert.Equal(t, 500, cfg.Ingest.MaxChunkSize)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 8, cfg.Embeddings.BatchSize)
	assert.Equal(t, "mydocs", cfg.Backend.Collection)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DOCVECTOR_BACKEND", "local")
	t.Setenv("DOCVECTOR_ROOT", "/from/env")
	t.Setenv("DOCVECTOR_EMBED_BATCH_SIZE", "32")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Ingest.Root)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_MissingFile_Errors(t *testing.T) {
	_, err := Load("/no/such/config.yaml")
	require.Error(t, err)
}

func TestValidate_CloudRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.Backend.Provider = BackendCloud

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service_name")

	cfg.Backend.ServiceName = "mysvc"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.Backend.APIKey = "key"
	cfg.Backend.IndexName = "idx"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownProviderRejected(t *testing.T) {
	cfg := Default()
	cfg.Backend.Provider = "qdrant"

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsBadNumbers(t *testing.T) {
	cfg := Default()
	cfg.Ingest.MaxChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Embeddings.BatchSize = -1
	assert.Error(t, cfg.Validate())
}

func TestInterBatchDelay_Parsing(t *testing.T) {
	cfg := Default()

	cfg.Embeddings.InterBatchDelay = "250ms"
	d, err := cfg.InterBatchDelay()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	cfg.Embeddings.InterBatchDelay = "0"
	d, err = cfg.InterBatchDelay()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	cfg.Embeddings.InterBatchDelay = "banana"
	_, err = cfg.InterBatchDelay()
	assert.Error(t, err)
}
