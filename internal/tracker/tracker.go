// Package tracker persists a signature-based idempotence store.
//
// A file is considered already processed only while its stored signature
// (path, size, mtime) matches the file's current state exactly; any
// mismatch invalidates the entry. The store persists as a keyed JSON map
// written atomically (temp file + rename) under a cross-process advisory
// lock, so concurrent runs cannot tear the store file. Mutation methods do
// not auto-persist: callers batch mutations and call Save explicitly.
package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio"

	"github.com/docvector/docvector/internal/errors"
)

// DefaultFileName is the default tracker store file name.
const DefaultFileName = ".docvector-tracker.json"

// Signature identifies one version of a file on disk.
type Signature struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Entry is one persisted tracker record, keyed by absolute path.
type Entry struct {
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	MTimeNano int64             `json:"mtime_nano"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Tracker is the in-memory view of the persisted store.
type Tracker struct {
	mu        sync.Mutex
	entries   map[string]Entry
	storePath string
	lock      *flock.Flock
}

// New creates a tracker rooted at storageRoot. The root is a required
// external configuration value: construction fails if it is unset or does
// not exist. An existing store file is loaded; an unparsable one is treated
// as empty (best-effort recovery).
func New(storageRoot, fileName string) (*Tracker, error) {
	if storageRoot == "" {
		return nil, errors.ConfigError("tracker storage root is not configured", nil)
	}
	info, err := os.Stat(storageRoot)
	if err != nil || !info.IsDir() {
		return nil, errors.ConfigError("tracker storage root does not exist: "+storageRoot, err)
	}
	if fileName == "" {
		fileName = DefaultFileName
	}

	storePath := filepath.Join(storageRoot, fileName)
	t := &Tracker{
		entries:   make(map[string]Entry),
		storePath: storePath,
		lock:      flock.New(storePath + ".lock"),
	}
	t.load()
	return t, nil
}

// load reads the persisted store. Corruption is recovered by starting empty.
func (t *Tracker) load() {
	data, err := os.ReadFile(t.storePath)
	if err != nil {
		return // Fresh store
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("tracker store unparsable, starting empty",
			slog.String("path", t.storePath),
			slog.String("error", err.Error()))
		return
	}
	t.entries = entries
}

// IsProcessed reports whether a stored entry exists whose path, size, and
// mtime all match the file's current signature.
func (t *Tracker) IsProcessed(sig Signature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[sig.Path]
	if !ok {
		return false
	}
	return entry.Path == sig.Path &&
		entry.Size == sig.Size &&
		entry.MTimeNano == sig.ModTime.UnixNano()
}

// MarkProcessed upserts an entry with the current signature and optional
// metadata. The change is in-memory until Save is called.
func (t *Tracker) MarkProcessed(sig Signature, metadata map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[sig.Path] = Entry{
		Path:      sig.Path,
		Size:      sig.Size,
		MTimeNano: sig.ModTime.UnixNano(),
		Metadata:  metadata,
	}
}

// MarkUnprocessed removes the entry for a path, keeping tracker and backend
// consistent after a delete flow.
func (t *Tracker) MarkUnprocessed(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, path)
}

// Save persists the in-memory map atomically under an advisory lock.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock tracker store: %w", err)
	}
	defer func() { _ = t.lock.Unlock() }()

	data, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracker store: %w", err)
	}

	if err := renameio.WriteFile(t.storePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tracker store: %w", err)
	}
	return nil
}

// Reset empties the in-memory map. An explicit Save is required to persist.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Entry)
}

// Clear empties the map and deletes the persisted store file immediately.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]Entry)
	if err := os.Remove(t.storePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove tracker store: %w", err)
	}
	return nil
}

// Get returns the entry for a path, if tracked.
func (t *Tracker) Get(path string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[path]
	return entry, ok
}

// Count returns the number of tracked entries.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Paths returns all tracked paths.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	return paths
}

// StorePath returns the path of the persisted store file.
func (t *Tracker) StorePath() string {
	return t.storePath
}
