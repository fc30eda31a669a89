// Package memory is an in-process vector store used for offline mode and
// tests. Search is brute-force cosine similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ragbot/internal/domain"
)

// Store keeps vectors partitioned by namespace. Points are keyed by
// (source, page, content), so indexing the same chunks twice overwrites
// instead of duplicating.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	slots   map[string]int
	chunks  []domain.Chunk
	vectors [][]float64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{buckets: make(map[string]*bucket)}
}

// IsPopulated reports whether the namespace holds any vectors.
func (s *Store) IsPopulated(_ context.Context, namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[namespace]
	return ok && len(b.chunks) > 0, nil
}

// Index upserts the chunks into the namespace.
func (s *Store) Index(_ context.Context, namespace string, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[namespace]
	if !ok {
		b = &bucket{slots: make(map[string]int)}
		s.buckets[namespace] = b
	}
	for i := range chunks {
		key := pointKey(chunks[i])
		if slot, ok := b.slots[key]; ok {
			b.vectors[slot] = vectors[i]
			continue
		}
		b.slots[key] = len(b.chunks)
		b.chunks = append(b.chunks, chunks[i])
		b.vectors = append(b.vectors, vectors[i])
	}
	return nil
}

// Search returns the topK most similar chunks in the namespace. Vectors are
// assumed L2-normalized, so the dot product is the cosine similarity.
func (s *Store) Search(_ context.Context, namespace string, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[namespace]
	if !ok {
		return nil, nil
	}
	results := make([]domain.SearchResult, len(b.chunks))
	for i := range b.chunks {
		results[i] = domain.SearchResult{Chunk: b.chunks[i], Score: dot(b.vectors[i], vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func pointKey(ch domain.Chunk) string {
	page := ch.Page.Label
	if ch.Page.HasNumber {
		page = fmt.Sprintf("%d", ch.Page.Number)
	}
	return ch.Source + "\x00" + page + "\x00" + ch.Content
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
