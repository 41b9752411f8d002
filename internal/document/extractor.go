package document

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/docvector/docvector/internal/errors"
)

// extensionTypes maps file extensions to document formats.
var extensionTypes = map[string]FileType{
	".md":       FileTypeMarkdown,
	".markdown": FileTypeMarkdown,
	".mdx":      FileTypeMarkdown,
	".txt":      FileTypeText,
	".text":     FileTypeText,
	".rst":      FileTypeText,
}

// frontMatterPattern matches a YAML front matter block at the start of a file.
var frontMatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.+?)\r?\n---\r?\n?`)

// DefaultCategory is used when neither front matter nor an override sets one.
const DefaultCategory = "general"

// frontMatter is the set of recognized front matter keys.
type frontMatter struct {
	Title    string   `yaml:"title"`
	Tags     []string `yaml:"tags"`
	Category string   `yaml:"category"`
	Context  string   `yaml:"context"`
}

// DetectFileType maps a file path's extension to a FileType.
// Unsupported extensions return FileTypeUnknown.
func DetectFileType(path string) FileType {
	if ft, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ft
	}
	return FileTypeUnknown
}

// Extract derives metadata from path heuristics and embedded front matter.
// It returns the metadata and the clean content (front matter stripped)
// to be used for chunking.
func Extract(content, filePath string) (*Metadata, string, error) {
	ft := DetectFileType(filePath)
	if ft == FileTypeUnknown {
		return nil, "", errors.New(errors.ErrCodeUnsupportedFile,
			"unsupported file extension: "+filepath.Ext(filePath), nil)
	}

	clean := content
	var fm frontMatter
	if ft == FileTypeMarkdown {
		if match := frontMatterPattern.FindStringSubmatch(content); match != nil {
			if err := yaml.Unmarshal([]byte(match[1]), &fm); err == nil {
				clean = content[len(match[0]):]
			}
			// Unparsable front matter is left in place as body text.
		}
	}

	context := fm.Context
	if context == "" {
		context = filepath.Base(filepath.Dir(filePath))
	}

	title := fm.Title
	if title == "" {
		title = titleFromFileName(filepath.Base(filePath))
	}

	category := fm.Category
	if category == "" {
		category = DefaultCategory
	}

	tags := defaultTags(filePath, context, ft)
	tags = mergeTags(tags, fm.Tags)

	return &Metadata{
		Title:    title,
		Tags:     tags,
		Category: category,
		Context:  context,
		FileType: ft,
	}, clean, nil
}

// overrideKeys are the keys accepted in direct-override mode.
// title, tags, category, and context are required; extra is optional.
var overrideKeys = map[string]bool{
	"title":    true,
	"tags":     true,
	"category": true,
	"context":  true,
	"extra":    true,
}

// ExtractWithOverride bypasses all heuristics: the caller supplies a
// complete metadata object. Required fields must be fully present and no
// unknown keys are allowed; validation failure names every offending field.
func ExtractWithOverride(filePath string, override map[string]any) (*Metadata, error) {
	ft := DetectFileType(filePath)
	if ft == FileTypeUnknown {
		return nil, errors.New(errors.ErrCodeUnsupportedFile,
			"unsupported file extension: "+filepath.Ext(filePath), nil)
	}

	var problems []string

	for key := range override {
		if !overrideKeys[key] {
			problems = append(problems, fmt.Sprintf("unknown field %q", key))
		}
	}

	title, ok := override["title"].(string)
	if !ok || title == "" {
		problems = append(problems, "missing field \"title\"")
	}
	category, ok := override["category"].(string)
	if !ok || category == "" {
		problems = append(problems, "missing field \"category\"")
	}
	context, ok := override["context"].(string)
	if !ok || context == "" {
		problems = append(problems, "missing field \"context\"")
	}
	tags, tagsErr := stringSlice(override["tags"])
	if tagsErr != nil || len(tags) == 0 {
		problems = append(problems, "missing field \"tags\"")
	}

	var extra map[string]string
	if raw, present := override["extra"]; present {
		m, err := stringMap(raw)
		if err != nil {
			problems = append(problems, "disallowed value for field \"extra\"")
		} else {
			extra = m
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, errors.SchemaValidationError(
			"metadata override validation failed: "+strings.Join(problems, "; "), problems)
	}

	return &Metadata{
		Title:    title,
		Tags:     tags,
		Category: category,
		Context:  context,
		FileType: ft,
		Extra:    extra,
	}, nil
}

// titleFromFileName converts "my-file_name.md" to "My File Name".
func titleFromFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)

	words := strings.Fields(base)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// slugFromFileName converts "My File.md" to "my-file".
func slugFromFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.NewReplacer(" ", "-", "_", "-").Replace(base)
	return base
}

// defaultTags builds the heuristic tag set: context, file type, file slug.
func defaultTags(filePath, context string, ft FileType) []string {
	return []string{
		context,
		string(ft),
		slugFromFileName(filepath.Base(filePath)),
	}
}

// mergeTags appends declared tags, deduplicating while preserving order.
func mergeTags(base, declared []string) []string {
	seen := make(map[string]bool, len(base)+len(declared))
	out := make([]string, 0, len(base)+len(declared))
	for _, t := range append(base, declared...) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func stringSlice(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string tag %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a string list: %v", v)
	}
}

func stringMap(v any) (map[string]string, error) {
	switch vals := v.(type) {
	case map[string]string:
		return vals, nil
	case map[string]any:
		out := make(map[string]string, len(vals))
		for k, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string value for %q", k)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a string map: %v", v)
	}
}
