package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbot/internal/domain"
)

func chunk(content, source string, page int) domain.Chunk {
	return domain.Chunk{
		Content: content,
		Source:  source,
		Page:    domain.PageRef{Number: page, HasNumber: true},
	}
}

func TestIsPopulated(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	populated, err := s.IsPopulated(ctx, "ns")
	require.NoError(t, err)
	assert.False(t, populated)

	require.NoError(t, s.Index(ctx, "ns", []domain.Chunk{chunk("a", "a.pdf", 0)}, [][]float64{{1, 0}}))

	populated, err = s.IsPopulated(ctx, "ns")
	require.NoError(t, err)
	assert.True(t, populated)

	populated, err = s.IsPopulated(ctx, "other")
	require.NoError(t, err)
	assert.False(t, populated)
}

func TestSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Index(ctx, "ns",
		[]domain.Chunk{chunk("north", "a.pdf", 0), chunk("east", "a.pdf", 1), chunk("diag", "a.pdf", 2)},
		[][]float64{{1, 0}, {0, 1}, {0.7, 0.7}}))

	results, err := s.Search(ctx, "ns", []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "north", results[0].Chunk.Content)
	assert.Equal(t, "diag", results[1].Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	chunks := []domain.Chunk{chunk("a", "a.pdf", 0), chunk("b", "a.pdf", 1)}
	vectors := [][]float64{{1, 0}, {0, 1}}

	require.NoError(t, s.Index(ctx, "ns", chunks, vectors))
	first, err := s.Search(ctx, "ns", []float64{1, 0}, 10)
	require.NoError(t, err)

	require.NoError(t, s.Index(ctx, "ns", chunks, vectors))
	second, err := s.Search(ctx, "ns", []float64{1, 0}, 10)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Chunk, second[i].Chunk)
	}
}

func TestIndexLengthMismatch(t *testing.T) {
	s := NewStore()
	err := s.Index(context.Background(), "ns", []domain.Chunk{chunk("a", "a.pdf", 0)}, nil)
	assert.Error(t, err)
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Index(ctx, "one", []domain.Chunk{chunk("a", "a.pdf", 0)}, [][]float64{{1}}))

	results, err := s.Search(ctx, "two", []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
