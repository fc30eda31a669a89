// Package retriever owns chunk indexing and similarity search, caching one
// retriever handle per namespace.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ragbot/internal/domain"
)

// DefaultTopK is the default number of chunks returned by a search.
const DefaultTopK = 5

// Handle is a cached binding between a namespace and the similarity-search
// backend. Handles live for the process lifetime; there is no eviction, and
// cardinality is bounded by the number of distinct uploaded document sets.
type Handle struct {
	Namespace string
	TopK      int
}

// Manager caches retriever handles per namespace and indexes chunk sets on
// first use. Safe for concurrent use; concurrent resolves of the same
// unindexed namespace coalesce into a single index build.
type Manager struct {
	store    domain.VectorStore
	embedder domain.Embedder
	logger   *zap.Logger
	topK     int

	mu      sync.RWMutex
	handles map[string]*Handle
	group   singleflight.Group
}

// NewManager creates a retrieval index manager.
func NewManager(store domain.VectorStore, embedder domain.Embedder, topK int, logger *zap.Logger) *Manager {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		logger:   logger,
		topK:     topK,
		handles:  make(map[string]*Handle),
	}
}

// Resolve returns the retriever handle for the namespace. On a cache hit no
// remote calls are made. Otherwise the remote index is consulted: an already
// populated namespace is bound without re-indexing, an empty one is indexed
// from the chunks produced by load. A failing populated check is treated as
// "not populated" so a flaky check never loses data; a failing index build
// is a hard error.
func (m *Manager) Resolve(ctx context.Context, namespace string, load func() ([]domain.Chunk, error)) (*Handle, error) {
	m.mu.RLock()
	h := m.handles[namespace]
	m.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := m.group.Do(namespace, func() (any, error) {
		// A concurrent resolve may have finished while this call waited.
		m.mu.RLock()
		h := m.handles[namespace]
		m.mu.RUnlock()
		if h != nil {
			return h, nil
		}

		populated, err := m.store.IsPopulated(ctx, namespace)
		if err != nil {
			m.logger.Warn("populated check failed, assuming empty namespace",
				zap.String("namespace", namespace), zap.Error(err))
			populated = false
		}

		if populated {
			m.logger.Info("namespace already populated, skipping indexing",
				zap.String("namespace", namespace))
		} else if err := m.index(ctx, namespace, load); err != nil {
			return nil, err
		}

		h = &Handle{Namespace: namespace, TopK: m.topK}
		m.mu.Lock()
		m.handles[namespace] = h
		m.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (m *Manager) index(ctx context.Context, namespace string, load func() ([]domain.Chunk, error)) error {
	chunks, err := load()
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return errors.New("no chunks produced for indexing")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	if err := m.embedder.Prepare(texts); err != nil {
		return fmt.Errorf("preparing embedder: %w", err)
	}
	vectors := make([][]float64, len(chunks))
	for i, text := range texts {
		vectors[i], err = m.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", i, err)
		}
	}
	if err := m.store.Index(ctx, namespace, chunks, vectors); err != nil {
		return fmt.Errorf("indexing namespace %s: %w", namespace, err)
	}
	m.logger.Info("indexed namespace",
		zap.String("namespace", namespace), zap.Int("chunks", len(chunks)))
	return nil
}

// Search retrieves at most k chunks for the query, ordered by decreasing
// relevance. A non-positive k falls back to the handle's top-k.
func (m *Manager) Search(ctx context.Context, h *Handle, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = h.TopK
	}
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := m.store.Search(ctx, h.Namespace, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching namespace %s: %w", h.Namespace, err)
	}
	return results, nil
}
