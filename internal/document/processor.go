package document

import (
	"os"
	"path/filepath"
	"time"

	"github.com/docvector/docvector/internal/chunk"
	"github.com/docvector/docvector/internal/errors"
)

// ProcessOptions configures document processing.
type ProcessOptions struct {
	// MaxChunkSize is the chunk size ceiling in bytes.
	MaxChunkSize int

	// MetadataOverride, when non-nil, bypasses all metadata heuristics.
	// The override must be complete; see ExtractWithOverride.
	MetadataOverride map[string]any
}

// Process reads, extracts, and chunks one file into a ProcessedDocument.
// An unreadable file or an empty post-extraction body is an error; the
// pipeline reports it and moves on to the next file.
func Process(filePath string, modTime time.Time, opts ProcessOptions) (*ProcessedDocument, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileUnreadable,
			"failed to read file: "+filePath, err)
	}

	var meta *Metadata
	content := string(raw)

	if opts.MetadataOverride != nil {
		meta, err = ExtractWithOverride(filePath, opts.MetadataOverride)
	} else {
		meta, content, err = Extract(content, filePath)
	}
	if err != nil {
		return nil, err
	}

	maxChunkSize := opts.MaxChunkSize
	if maxChunkSize <= 0 {
		maxChunkSize = chunk.DefaultMaxChunkSize
	}

	chunks := chunk.Split(content, maxChunkSize)
	if len(chunks) == 0 {
		return nil, errors.New(errors.ErrCodeUnsupportedFile,
			"file has no indexable content: "+filePath, nil)
	}

	return &ProcessedDocument{
		ID:           DocumentID(filePath),
		FilePath:     filePath,
		FileName:     filepath.Base(filePath),
		FileType:     meta.FileType,
		Title:        meta.Title,
		Content:      content,
		Chunks:       chunks,
		Tags:         meta.Tags,
		Category:     meta.Category,
		Context:      meta.Context,
		LastModified: modTime,
		ChunkCount:   len(chunks),
		Extra:        meta.Extra,
	}, nil
}
