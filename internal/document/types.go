// Package document derives document metadata and assembles processed
// documents from raw file content.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FileType is the document format derived from the file extension.
type FileType string

const (
	FileTypeMarkdown FileType = "markdown"
	FileTypeText     FileType = "text"
	// FileTypeUnknown marks unsupported extensions; the pipeline skips these.
	FileTypeUnknown FileType = "unknown"
)

// Metadata holds the fields derived (or supplied) for one document.
type Metadata struct {
	Title    string
	Tags     []string
	Category string
	// Context is the grouping key used to scope later filtering,
	// by default the immediate parent directory's name.
	Context  string
	FileType FileType
	// Extra is an opaque additional-metadata blob carried through to upload.
	Extra map[string]string
}

// ProcessedDocument is the unit produced by the Process phase and consumed
// by the Upload phase. It is not persisted itself; only its derived search
// objects persist in a backend.
type ProcessedDocument struct {
	ID           string // Stable hash of the file path
	FilePath     string
	FileName     string
	FileType     FileType
	Title        string
	Content      string
	Chunks       []string // Ordered; ChunkCount == len(Chunks)
	Tags         []string
	Category     string
	Context      string
	LastModified time.Time
	ChunkCount   int
	Extra        map[string]string
}

// DocumentID returns the stable document id for a file path.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}
