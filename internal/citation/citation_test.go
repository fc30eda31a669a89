package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbot/internal/domain"
)

func result(content, source string, page domain.PageRef) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Content: content, Source: source, Page: page}}
}

func intPage(n int) domain.PageRef    { return domain.PageRef{Number: n, HasNumber: true} }
func labelPage(l string) domain.PageRef { return domain.PageRef{Label: l} }

func TestBuildBasic(t *testing.T) {
	context, citations := Build([]domain.SearchResult{
		result("Refunds are issued within 30 days. Contact support first.", "/uploads/Policy.pdf", intPage(1)),
	})
	assert.Equal(t, "Refunds are issued within 30 days. Contact support first.\n\n", context)
	assert.Equal(t, "[1] Policy.pdf — Page 2: Refunds are issued within 30 days.", citations)
}

func TestBuildDeduplicatesBySourceAndPage(t *testing.T) {
	results := []domain.SearchResult{
		result("First passage from page one.", "a.pdf", intPage(0)),
		result("Overlapping passage, same page.", "a.pdf", intPage(0)),
		result("Different page passage.", "a.pdf", intPage(1)),
	}
	context, citations := Build(results)

	lines := strings.Split(citations, "\n")
	require.Less(t, len(lines), len(results), "duplicates must reduce citation count")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[1] a.pdf — Page 1:"))
	assert.True(t, strings.HasPrefix(lines[1], "[2] a.pdf — Page 2:"))

	// The skipped chunk is excluded from the context too.
	assert.NotContains(t, context, "Overlapping passage")
}

func TestBuildCitationOrderFollowsRetrievalOrder(t *testing.T) {
	_, citations := Build([]domain.SearchResult{
		result("Zeta document content here.", "z.pdf", intPage(0)),
		result("Alpha document content here.", "a.pdf", intPage(0)),
	})
	lines := strings.Split(citations, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "z.pdf")
	assert.Contains(t, lines[1], "a.pdf")
}

func TestPageLabelNormalization(t *testing.T) {
	cases := []struct {
		name string
		page domain.PageRef
		want string
	}{
		{"zero-based first page", intPage(0), "Page 1"},
		{"zero-based fifth page", intPage(4), "Page 5"},
		{"negative page preserved", intPage(-1), "Page -1"},
		{"string label verbatim", labelPage("iv"), "Page iv"},
		{"string label trimmed", labelPage("  iv "), "Page iv"},
		{"missing page", domain.PageRef{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pageLabel(tc.page))
		})
	}
}

func TestMissingPageOmitsDashSegment(t *testing.T) {
	_, citations := Build([]domain.SearchResult{
		result("Content without a page.", "doc.pdf", domain.PageRef{}),
	})
	assert.Equal(t, "[1] doc.pdf: Content without a page.", citations)
}

func TestSummarize(t *testing.T) {
	t.Run("no sentences", func(t *testing.T) {
		assert.Equal(t, "Referenced content", summarize(""))
	})
	t.Run("short first segment joined with second", func(t *testing.T) {
		assert.Equal(t, "Fees. They are listed in appendix B",
			summarize("Fees. They are listed in appendix B."))
	})
	t.Run("long first segment alone", func(t *testing.T) {
		assert.Equal(t, "The refund window spans thirty calendar days",
			summarize("The refund window spans thirty calendar days. More text."))
	})
}

func TestBuildFlattensNewlines(t *testing.T) {
	context, _ := Build([]domain.SearchResult{
		result("line one\nline two\nline three", "doc.pdf", intPage(0)),
	})
	assert.Equal(t, "line one line two line three\n\n", context)
}

func TestBuildEmpty(t *testing.T) {
	context, citations := Build(nil)
	assert.Empty(t, context)
	assert.Empty(t, citations)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "a.pdf", displayName("/tmp/uploads/a.pdf"))
	assert.Equal(t, "a.pdf", displayName(`C:\files\a.pdf`))
	assert.Equal(t, "a.pdf", displayName("a.pdf"))
	assert.Equal(t, "document", displayName(""))
}
