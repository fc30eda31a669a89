// Package chunker splits extracted document pages into overlapping chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"ragbot/internal/domain"
)

// DefaultWindowSize is the default number of characters per chunk.
const DefaultWindowSize = 800

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 300

// WindowChunker splits page text into overlapping character windows,
// preferring paragraph, sentence or word boundaries near the cut point.
// Each chunk inherits the source and page of its originating page.
type WindowChunker struct {
	windowSize int
	overlap    int
}

// NewWindowChunker creates a chunker with the given window size and overlap.
// Non-positive sizes fall back to the defaults, and the overlap is clamped
// below the window size so the scan always advances.
func NewWindowChunker(windowSize, overlap int) *WindowChunker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= windowSize {
		overlap = windowSize / 4
	}
	return &WindowChunker{windowSize: windowSize, overlap: overlap}
}

// Chunk produces the chunk sequence for the given pages, in page order.
// Whitespace-only pages yield no chunks; any page with content yields at
// least one.
func (c *WindowChunker) Chunk(pages []domain.Page) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, p := range pages {
		for _, window := range c.split(p.Text) {
			chunks = append(chunks, domain.Chunk{
				Content: window,
				Source:  p.Source,
				Page:    domain.PageRef{Number: p.Number, HasNumber: true},
			})
		}
	}
	return chunks, nil
}

// split windows over runes, not bytes, so multi-byte text is never cut
// inside a character and window sizes mean characters.
func (c *WindowChunker) split(text string) []string {
	runes := []rune(text)
	var windows []string
	start := 0
	for start < len(runes) {
		end := start + c.windowSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.adjustToBoundary(runes, start, end)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			windows = append(windows, window)
		}
		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}

// adjustToBoundary moves the cut point back to the nearest natural boundary,
// searching no further than half a window so chunks stay near the target
// size. Paragraph breaks win over sentence ends, sentence ends over spaces.
// Offsets are rune indices.
func (c *WindowChunker) adjustToBoundary(runes []rune, start, end int) int {
	floor := end - c.windowSize/2
	if floor < start+1 {
		floor = start + 1
	}
	segment := string(runes[floor:end])
	for _, sep := range []string{"\n\n", ". ", "\n", " "} {
		if i := strings.LastIndex(segment, sep); i >= 0 {
			return floor + utf8.RuneCountInString(segment[:i]) + utf8.RuneCountInString(sep)
		}
	}
	return end
}
