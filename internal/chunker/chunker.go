// Package chunker splits document text into spans for retrieval.
package chunker

import (
	"strings"

	"paperqa/internal/domain"
)

// Forward search windows, in runes past the raw cut point.
const (
	paragraphWindow = 500
	newlineWindow   = 300
	sentenceWindow  = 200
)

// BoundaryChunker slides a fixed-size window over the text with overlap,
// preferring to cut at a paragraph break, then a line break, then a sentence
// end found just past the raw cut. Sizes are in runes so Chinese text is cut
// the same way as Latin text.
type BoundaryChunker struct {
	chunkSize int
	overlap   int
}

// NewBoundaryChunker creates a chunker with the given window size and
// overlap in runes. Non-positive sizes fall back to defaults.
func NewBoundaryChunker(chunkSize, overlap int) *BoundaryChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &BoundaryChunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into overlapping spans. Offsets are rune positions of
// the raw window; span text is whitespace-trimmed but the span is kept even
// when trimming empties it, so the raw windows always cover the whole text.
// The window start strictly increases each step, which guarantees
// termination even when the overlap reaches the adjusted window length.
func (c *BoundaryChunker) Chunk(text string) []domain.Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []domain.Span{{Text: strings.TrimSpace(text), StartOffset: 0, EndOffset: n}}
	}

	var spans []domain.Span
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end >= n {
			end = n
		} else {
			end = adjustCut(runes, end)
		}
		spans = append(spans, domain.Span{
			Text:        strings.TrimSpace(string(runes[start:end])),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// Fixed splits text into consecutive fixed-size rune windows with no overlap
// and no boundary search. The degraded retrieve path uses it when no
// embedder is configured.
func Fixed(text string, size int) []domain.Span {
	if size <= 0 {
		size = 1000
	}
	runes := []rune(text)
	n := len(runes)
	var spans []domain.Span
	for i := 0; i < n; i += size {
		end := min(i+size, n)
		spans = append(spans, domain.Span{
			Text:        string(runes[i:end]),
			StartOffset: i,
			EndOffset:   end,
		})
	}
	return spans
}

// adjustCut searches forward from the raw cut point for the first natural
// boundary and returns the position just past it; the raw cut stands when
// nothing is found within the windows.
func adjustCut(runes []rune, cut int) int {
	n := len(runes)

	limit := min(cut+paragraphWindow, n)
	for i := cut; i+1 < limit; i++ {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}

	limit = min(cut+newlineWindow, n)
	for i := cut; i < limit; i++ {
		if runes[i] == '\n' {
			return i + 1
		}
	}

	limit = min(cut+sentenceWindow, n)
	for i := cut; i < limit; i++ {
		if isSentenceEnd(runes[i]) && i+1 < n && isBoundarySpace(runes[i+1]) {
			return i + 1
		}
	}
	return cut
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '。', '!', '！', '?', '？':
		return true
	}
	return false
}

func isBoundarySpace(r rune) bool {
	switch r {
	case ' ', '\n', '\t':
		return true
	}
	return false
}
