// Package chunk splits document text into bounded, ordered segments.
// Chunks are the unit embedded and searched.
package chunk

import (
	"strings"
)

// DefaultMaxChunkSize is the default chunk size ceiling in bytes.
const DefaultMaxChunkSize = 2000

// Split divides content into ordered chunks of at most maxChunkSize bytes.
//
// Splitting happens on sentence boundaries (". "); sentences accumulate
// into the current chunk until adding the next would exceed the limit.
// A single sentence longer than the limit falls back to word-level
// accumulation. Concatenating all chunks reproduces the original content
// up to whitespace and sentence-boundary normalization; no chunk exceeds
// maxChunkSize except an unsplittable single token.
//
// Empty content yields an empty list. Content within the limit yields a
// single chunk.
func Split(content string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= maxChunkSize {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	appendPiece := func(piece string) {
		if current.Len() > 0 && current.Len()+1+len(piece) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
	}

	for _, sentence := range splitSentences(content) {
		if len(sentence) <= maxChunkSize {
			appendPiece(sentence)
			continue
		}

		// Oversized sentence: fall back to word-level accumulation.
		// A single word longer than the limit is kept whole.
		for _, word := range strings.Fields(sentence) {
			appendPiece(word)
		}
	}
	flush()

	return chunks
}

// splitSentences splits on ". " boundaries, keeping the terminating period
// with each sentence.
func splitSentences(content string) []string {
	parts := strings.Split(content, ". ")
	sentences := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 && !strings.HasSuffix(p, ".") {
			p += "."
		}
		sentences = append(sentences, p)
	}
	return sentences
}
