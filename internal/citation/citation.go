// Package citation assembles the model context and human-readable source
// footnotes from retrieved chunks.
package citation

import (
	"fmt"
	"strings"

	"ragbot/internal/domain"
)

// Build merges the retrieved chunks, in order, into a single context string
// and an ordered citation block. Chunks repeating an already seen
// (filename, page label) pair are skipped entirely, so overlapping chunks
// from the same page are neither restated in the context nor cited twice.
// The citations string is empty when no chunks survive deduplication.
func Build(results []domain.SearchResult) (contextText, citationsText string) {
	var context strings.Builder
	var footnotes []string
	seen := make(map[[2]string]struct{})

	for _, r := range results {
		filename := displayName(r.Chunk.Source)
		label := pageLabel(r.Chunk.Page)

		key := [2]string{filename, label}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		excerpt := strings.TrimSpace(strings.ReplaceAll(r.Chunk.Content, "\n", " "))
		context.WriteString(excerpt)
		context.WriteString("\n\n")

		dash := ""
		if label != "" {
			dash = " — " + label
		}
		footnotes = append(footnotes, fmt.Sprintf("[%d] %s%s: %s.",
			len(footnotes)+1, filename, dash, summarize(excerpt)))
	}

	return context.String(), strings.Join(footnotes, "\n")
}

// displayName returns the last path segment of a source identifier,
// handling both path separator styles.
func displayName(source string) string {
	if source == "" {
		return "document"
	}
	if i := strings.LastIndexAny(source, `/\`); i >= 0 {
		source = source[i+1:]
	}
	return source
}

// pageLabel renders the page reference for display. Integer indices are
// zero-based internally and shown one-based; negative values are already
// anomalous and are shown as-is. String labels are shown verbatim, trimmed.
func pageLabel(ref domain.PageRef) string {
	if ref.HasNumber {
		n := ref.Number
		if n >= 0 {
			n++
		}
		return fmt.Sprintf("Page %d", n)
	}
	if label := strings.TrimSpace(ref.Label); label != "" {
		return "Page " + label
	}
	return ""
}

// summarize produces the one-line excerpt summary for a footnote: the first
// sentence, joined with the second when the first is very short.
func summarize(excerpt string) string {
	var parts []string
	for _, p := range strings.Split(excerpt, ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch {
	case len(parts) == 0:
		return "Referenced content"
	case len(parts[0]) < 20 && len(parts) > 1:
		return parts[0] + ". " + parts[1]
	default:
		return parts[0]
	}
}
