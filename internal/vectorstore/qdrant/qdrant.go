// Package qdrant is a minimal REST adapter for a Qdrant vector index.
// Each namespace maps to its own collection, created on first indexing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragbot/internal/domain"
)

// Store talks to Qdrant over its HTTP API. It assumes cosine distance.
type Store struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

// Config contains connection details for a Qdrant server.
type Config struct {
	URL string
	// APIKey is optional for local deployments.
	APIKey string
	// CollectionPrefix prepends every namespace-derived collection name,
	// keeping this application's collections apart from others on a shared
	// server.
	CollectionPrefix string
	Timeout          time.Duration
}

// NewStore creates a Qdrant-backed vector store.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "ragbot-"
	}
	return &Store{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		prefix: prefix,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Store) collection(namespace string) string {
	return s.prefix + namespace
}

// IsPopulated reports whether the namespace's collection exists and holds
// at least one point.
func (s *Store) IsPopulated(ctx context.Context, namespace string) (bool, error) {
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection(namespace)),
		map[string]any{"exact": true}, &out)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status >= 300 {
		return false, fmt.Errorf("qdrant count for %s failed: status %d", s.collection(namespace), status)
	}
	return out.Result.Count > 0, nil
}

// Index upserts the chunks into the namespace's collection, creating it if
// needed. Point IDs are derived from (source, page, content), so indexing
// the same chunks twice overwrites the same points.
func (s *Store) Index(ctx context.Context, namespace string, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return errors.New("no chunks to index")
	}
	if err := s.ensureCollection(ctx, namespace, len(vectors[0])); err != nil {
		return err
	}

	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		payload := map[string]any{
			"text":   ch.Content,
			"source": ch.Source,
		}
		if ch.Page.HasNumber {
			payload["page_number"] = ch.Page.Number
		}
		if ch.Page.Label != "" {
			payload["page_label"] = ch.Page.Label
		}
		points[i] = map[string]any{
			"id":      pointID(ch),
			"vector":  vectors[i],
			"payload": payload,
		}
	}

	status, err := s.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection(namespace)),
		map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant upsert into %s failed: status %d", s.collection(namespace), status)
	}
	return nil
}

// Search returns the topK nearest chunks in the namespace. A missing
// collection yields no results rather than an error.
func (s *Store) Search(ctx context.Context, namespace string, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	var out struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection(namespace)),
		map[string]any{"vector": vector, "limit": topK, "with_payload": true}, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant search in %s failed: status %d", s.collection(namespace), status)
	}

	results := make([]domain.SearchResult, 0, len(out.Result))
	for _, r := range out.Result {
		chunk := domain.Chunk{}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Content = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			chunk.Source = v
		}
		if v, ok := r.Payload["page_number"].(float64); ok {
			chunk.Page.Number = int(v)
			chunk.Page.HasNumber = true
		}
		if v, ok := r.Payload["page_label"].(string); ok {
			chunk.Page.Label = v
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

func (s *Store) ensureCollection(ctx context.Context, namespace string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}
	status, err := s.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection(namespace)),
		map[string]any{
			"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
		}, nil)
	if err != nil {
		return err
	}
	// 409 means the collection already exists, which is fine for repeat
	// indexing into a populated namespace.
	if status >= 300 && status != http.StatusConflict {
		return fmt.Errorf("qdrant create collection %s failed: status %d", s.collection(namespace), status)
	}
	return nil
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// pointID derives a stable UUID for a chunk so repeat indexing upserts
// instead of duplicating.
func pointID(ch domain.Chunk) string {
	page := ch.Page.Label
	if ch.Page.HasNumber {
		page = fmt.Sprintf("%d", ch.Page.Number)
	}
	key := ch.Source + "\x00" + page + "\x00" + ch.Content
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(key)).String()
}
