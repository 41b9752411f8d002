// Package discovery enumerates candidate files for ingestion.
// It walks a root directory (or accepts a single file), filters by
// extension and exclusion rules, and returns a stable, ordered file list.
package discovery

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docvector/docvector/internal/errors"
)

// DiscoveredFile contains metadata about a candidate file.
// Ephemeral: produced here, consumed by the tracker filter and extractor.
type DiscoveredFile struct {
	Path      string    // Absolute path
	Extension string    // Lowercased extension, including the dot
	Size      int64     // File size in bytes
	ModTime   time.Time // Last modification time
}

// Options configures discovery behavior.
type Options struct {
	// Extensions is the set of allowed file extensions (with dot).
	Extensions []string

	// Recursive walks subdirectories when true, top level only when false.
	Recursive bool

	// MaxFiles truncates the result to the first N files after sorting
	// (0 = unlimited).
	MaxFiles int

	// ExcludePatterns skips any path containing one of these substrings.
	ExcludePatterns []string
}

// Discover enumerates files under rootPath matching the options.
// Results are sorted lexicographically by path. Zero-byte files are
// excluded. If rootPath is a single file it is returned as a singleton
// list iff its extension is allowed, otherwise an empty list.
func Discover(ctx context.Context, rootPath string, opts Options) ([]*DiscoveredFile, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, errors.NotFoundError("failed to resolve root path: "+rootPath, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("root path does not exist: "+absRoot, err)
		}
		return nil, errors.NotFoundError("failed to stat root path: "+absRoot, err)
	}

	allowed := extensionSet(opts.Extensions)

	// Single-file root: singleton iff extension allowed.
	if !info.IsDir() {
		ext := strings.ToLower(filepath.Ext(absRoot))
		if !allowed[ext] || info.Size() == 0 {
			return []*DiscoveredFile{}, nil
		}
		return []*DiscoveredFile{{
			Path:      absRoot,
			Extension: ext,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		}}, nil
	}

	var files []*DiscoveredFile
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			if isExcluded(path, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !allowed[ext] {
			return nil
		}
		if isExcluded(path, opts.ExcludePatterns) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() == 0 {
			slog.Debug("skipping empty file", slog.String("path", path))
			return nil
		}

		files = append(files, &DiscoveredFile{
			Path:      path,
			Extension: ext,
			Size:      fi.Size(),
			ModTime:   fi.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NotFoundError("failed to walk root path: "+absRoot, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}

	slog.Debug("discovery complete",
		slog.String("root", absRoot),
		slog.Int("files", len(files)))

	return files, nil
}

// extensionSet normalizes extensions into a lowercase lookup set.
func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

// isExcluded checks whether a path contains any exclusion substring.
func isExcluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}
